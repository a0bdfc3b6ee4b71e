package render

// Arabic contextual shaping.
//
// Arabic letters change shape depending on whether they connect to the letter
// before and after them. Shape maps each letter onto the matching Unicode
// presentation form (Arabic Presentation Forms-A/B) so that a plain glyph
// rasteriser draws connected script. Shaping never reorders runes; visual
// right-to-left placement is done at draw time.

// joining classes
const (
	joinNone  = iota // does not connect on either side
	joinRight        // connects only to the preceding letter
	joinDual         // connects on both sides
	joinCause        // tatweel: connects on both sides, never changes shape
)

// forms holds the isolated, final, initial and medial presentation forms.
// A zero entry means the form does not exist.
type forms struct {
	isolated, final, initial, medial rune
	joining                          int
}

var arabicForms = map[rune]forms{
	0x0621: {0xFE80, 0, 0, 0, joinNone},
	0x0622: {0xFE81, 0xFE82, 0, 0, joinRight},
	0x0623: {0xFE83, 0xFE84, 0, 0, joinRight},
	0x0624: {0xFE85, 0xFE86, 0, 0, joinRight},
	0x0625: {0xFE87, 0xFE88, 0, 0, joinRight},
	0x0626: {0xFE89, 0xFE8A, 0xFE8B, 0xFE8C, joinDual},
	0x0627: {0xFE8D, 0xFE8E, 0, 0, joinRight},
	0x0628: {0xFE8F, 0xFE90, 0xFE91, 0xFE92, joinDual},
	0x0629: {0xFE93, 0xFE94, 0, 0, joinRight},
	0x062A: {0xFE95, 0xFE96, 0xFE97, 0xFE98, joinDual},
	0x062B: {0xFE99, 0xFE9A, 0xFE9B, 0xFE9C, joinDual},
	0x062C: {0xFE9D, 0xFE9E, 0xFE9F, 0xFEA0, joinDual},
	0x062D: {0xFEA1, 0xFEA2, 0xFEA3, 0xFEA4, joinDual},
	0x062E: {0xFEA5, 0xFEA6, 0xFEA7, 0xFEA8, joinDual},
	0x062F: {0xFEA9, 0xFEAA, 0, 0, joinRight},
	0x0630: {0xFEAB, 0xFEAC, 0, 0, joinRight},
	0x0631: {0xFEAD, 0xFEAE, 0, 0, joinRight},
	0x0632: {0xFEAF, 0xFEB0, 0, 0, joinRight},
	0x0633: {0xFEB1, 0xFEB2, 0xFEB3, 0xFEB4, joinDual},
	0x0634: {0xFEB5, 0xFEB6, 0xFEB7, 0xFEB8, joinDual},
	0x0635: {0xFEB9, 0xFEBA, 0xFEBB, 0xFEBC, joinDual},
	0x0636: {0xFEBD, 0xFEBE, 0xFEBF, 0xFEC0, joinDual},
	0x0637: {0xFEC1, 0xFEC2, 0xFEC3, 0xFEC4, joinDual},
	0x0638: {0xFEC5, 0xFEC6, 0xFEC7, 0xFEC8, joinDual},
	0x0639: {0xFEC9, 0xFECA, 0xFECB, 0xFECC, joinDual},
	0x063A: {0xFECD, 0xFECE, 0xFECF, 0xFED0, joinDual},
	0x0640: {0x0640, 0x0640, 0x0640, 0x0640, joinCause},
	0x0641: {0xFED1, 0xFED2, 0xFED3, 0xFED4, joinDual},
	0x0642: {0xFED5, 0xFED6, 0xFED7, 0xFED8, joinDual},
	0x0643: {0xFED9, 0xFEDA, 0xFEDB, 0xFEDC, joinDual},
	0x0644: {0xFEDD, 0xFEDE, 0xFEDF, 0xFEE0, joinDual},
	0x0645: {0xFEE1, 0xFEE2, 0xFEE3, 0xFEE4, joinDual},
	0x0646: {0xFEE5, 0xFEE6, 0xFEE7, 0xFEE8, joinDual},
	0x0647: {0xFEE9, 0xFEEA, 0xFEEB, 0xFEEC, joinDual},
	0x0648: {0xFEED, 0xFEEE, 0, 0, joinRight},
	0x0649: {0xFEEF, 0xFEF0, 0, 0, joinRight},
	0x064A: {0xFEF1, 0xFEF2, 0xFEF3, 0xFEF4, joinDual},

	// Persian and Urdu letters
	0x067E: {0xFB56, 0xFB57, 0xFB58, 0xFB59, joinDual},
	0x0686: {0xFB7A, 0xFB7B, 0xFB7C, 0xFB7D, joinDual},
	0x0698: {0xFB8A, 0xFB8B, 0, 0, joinRight},
	0x06A9: {0xFB8E, 0xFB8F, 0xFB90, 0xFB91, joinDual},
	0x06AF: {0xFB92, 0xFB93, 0xFB94, 0xFB95, joinDual},
	0x06CC: {0xFBFC, 0xFBFD, 0xFBFE, 0xFBFF, joinDual},
}

const lam = 0x0644

// lamAlef maps the alef that follows a lam onto the isolated and final forms
// of the combined ligature.
var lamAlef = map[rune][2]rune{
	0x0622: {0xFEF5, 0xFEF6},
	0x0623: {0xFEF7, 0xFEF8},
	0x0625: {0xFEF9, 0xFEFA},
	0x0627: {0xFEFB, 0xFEFC},
}

// IsArabic reports whether text contains any rune from the Arabic,
// Arabic Supplement or Arabic Presentation Forms blocks.
func IsArabic(text string) bool {
	for _, r := range text {
		if isArabicRune(r) {
			return true
		}
	}
	return false
}

func isArabicRune(r rune) bool {
	return (r >= 0x0600 && r <= 0x06FF) ||
		(r >= 0x0750 && r <= 0x077F) ||
		(r >= 0xFB50 && r <= 0xFDFF) ||
		(r >= 0xFE70 && r <= 0xFEFF)
}

// isTransparent reports whether r is a combining mark that sits on the
// previous letter without breaking the join.
func isTransparent(r rune) bool {
	return (r >= 0x0610 && r <= 0x061A) ||
		(r >= 0x064B && r <= 0x065F) ||
		r == 0x0670 ||
		(r >= 0x06D6 && r <= 0x06DC) ||
		(r >= 0x06DF && r <= 0x06E4) ||
		r == 0x06E7 || r == 0x06E8 ||
		(r >= 0x06EA && r <= 0x06ED)
}

func joinsForward(r rune) bool {
	f, ok := arabicForms[r]
	return ok && (f.joining == joinDual || f.joining == joinCause)
}

func joinsBackward(r rune) bool {
	f, ok := arabicForms[r]
	return ok && f.joining != joinNone
}

// Shape replaces Arabic letters with their contextual presentation forms and
// folds lam + alef into the mandatory ligature. Runes that are not Arabic
// letters pass through unchanged and the logical order is preserved.
func Shape(text string) string {
	in := []rune(text)
	out := make([]rune, 0, len(in))

	prevLetter := func(i int) (rune, bool) {
		for j := i - 1; j >= 0; j-- {
			if !isTransparent(in[j]) {
				return in[j], true
			}
		}
		return 0, false
	}
	nextLetter := func(i int) (rune, int) {
		for j := i + 1; j < len(in); j++ {
			if !isTransparent(in[j]) {
				return in[j], j
			}
		}
		return 0, -1
	}

	for i := 0; i < len(in); i++ {
		r := in[i]
		f, ok := arabicForms[r]
		if !ok {
			out = append(out, r)
			continue
		}

		p, hasPrev := prevLetter(i)
		joinPrev := hasPrev && joinsForward(p) && joinsBackward(r)

		if r == lam && i+1 < len(in) {
			if lig, ok := lamAlef[in[i+1]]; ok {
				if joinPrev {
					out = append(out, lig[1])
				} else {
					out = append(out, lig[0])
				}
				i++
				continue
			}
		}

		n, _ := nextLetter(i)
		joinNext := n != 0 && joinsForward(r) && joinsBackward(n)

		out = append(out, pickForm(f, joinPrev, joinNext))
	}
	return string(out)
}

func pickForm(f forms, joinPrev, joinNext bool) rune {
	switch {
	case joinPrev && joinNext && f.medial != 0:
		return f.medial
	case joinPrev && f.final != 0:
		return f.final
	case joinNext && f.initial != 0:
		return f.initial
	default:
		return f.isolated
	}
}
