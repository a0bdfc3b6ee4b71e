package render

import (
	"os"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultFontPaths lists TrueType fonts tried in order. Amiri and the Noto
// Arabic faces cover both Arabic and Latin; DejaVu covers Latin and basic
// Arabic.
var DefaultFontPaths = []string{
	"/usr/share/fonts/truetype/amiri/amiri-regular.ttf",
	"/usr/share/fonts/truetype/amiri/Amiri-Regular.ttf",
	"/usr/share/fonts/TTF/Amiri-Regular.ttf",
	"/usr/share/fonts/truetype/noto/NotoNaskhArabic-Regular.ttf",
	"/usr/share/fonts/truetype/noto/NotoSansArabic-Regular.ttf",
	"/usr/share/fonts/truetype/fonts-arabic/Scheherazade-Regular.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

// FontSet resolves a usable font from an ordered list of files, falling back
// to the embedded Go Regular font and finally to a fixed bitmap face.
//
// Parsed fonts are cached and shared read-only; a FontSet is safe for
// concurrent use.
type FontSet struct {
	paths []string
	log   logrus.FieldLogger

	mu     sync.RWMutex
	parsed map[string]*truetype.Font // nil entry: file missing or unparseable

	builtinOnce sync.Once
	builtin     *truetype.Font

	arabicWarn sync.Once
}

// NewFontSet creates a font set over the given paths.
func NewFontSet(paths []string, log logrus.FieldLogger) *FontSet {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FontSet{
		paths:  append([]string(nil), paths...),
		log:    log,
		parsed: make(map[string]*truetype.Font),
	}
}

func (fs *FontSet) load(path string) *truetype.Font {
	fs.mu.RLock()
	f, seen := fs.parsed[path]
	fs.mu.RUnlock()
	if seen {
		return f
	}

	data, err := os.ReadFile(path)
	if err == nil {
		f, err = truetype.Parse(data)
	}
	if err != nil {
		fs.log.WithFields(logrus.Fields{"path": path, "error": err}).Debug("font unavailable")
		f = nil
	}

	fs.mu.Lock()
	fs.parsed[path] = f
	fs.mu.Unlock()
	return f
}

func (fs *FontSet) builtinFont() *truetype.Font {
	fs.builtinOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			fs.log.WithError(err).Warn("embedded font failed to parse, using bitmap face")
			return
		}
		fs.builtin = f
	})
	return fs.builtin
}

// covers reports whether f has a glyph for every visible rune of text.
func covers(f *truetype.Font, text string) bool {
	for _, r := range text {
		if r == ' ' || isTransparent(r) {
			continue
		}
		if f.Index(r) == 0 {
			return false
		}
	}
	return true
}

// FontFor picks the first configured font that covers text, then the
// embedded font if it covers text, then the first configured font that loads
// at all. It returns nil only when no TrueType font is usable.
func (fs *FontSet) FontFor(text string) *truetype.Font {
	var first *truetype.Font
	for _, p := range fs.paths {
		f := fs.load(p)
		if f == nil {
			continue
		}
		if covers(f, text) {
			return f
		}
		if first == nil {
			first = f
		}
	}
	f := first
	if b := fs.builtinFont(); b != nil && (first == nil || covers(b, text)) {
		f = b
	}
	if IsArabic(text) && (f == nil || !covers(f, text)) {
		fs.arabicWarn.Do(func() {
			fs.log.WithField("paths", fs.paths).Warn("no font with Arabic glyphs found; install Amiri or Noto Naskh Arabic, or pass --font-paths")
		})
	}
	return f
}

// Face returns a face of the given size for text. It never fails: with no
// TrueType font available it returns basicfont.Face7x13, whose size is fixed.
func (fs *FontSet) Face(text string, size float64) font.Face {
	f := fs.FontFor(text)
	if f == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(f, &truetype.Options{Size: size})
}
