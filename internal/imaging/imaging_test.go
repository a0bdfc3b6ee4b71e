package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

// createInMemoryImage creates a solid color image.
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createStripedImage draws 2-pixel black bars every 6 pixels on white, a
// stand-in for lines of print.
func createStripedImage(width, height int) *image.RGBA {
	img := createInMemoryImage(width, height, color.White)
	for y := 0; y < height; y++ {
		if y%6 < 2 {
			for x := 0; x < width; x++ {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

// writePNG writes img to a temp file and returns its path.
func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return path
}

func TestDecodeBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createInMemoryImage(30, 20, color.White)); err != nil {
		t.Fatal(err)
	}

	img, err := DecodeBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 20 {
		t.Errorf("dimensions: got %v, want 30x20", img.Bounds())
	}

	if _, err := DecodeBytes([]byte("not an image")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestImageCache_LoadEvictClear(t *testing.T) {
	path := writePNG(t, createInMemoryImage(40, 40, color.White))
	cache := NewImageCache()

	first, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if first != second {
		t.Error("second Load should return the cached image")
	}
	if cache.Len() != 1 {
		t.Errorf("Len: got %d, want 1", cache.Len())
	}

	cache.Evict(path)
	if cache.Len() != 0 {
		t.Errorf("Len after Evict: got %d, want 0", cache.Len())
	}

	if _, err := cache.Load(path); err != nil {
		t.Fatal(err)
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len after Clear: got %d, want 0", cache.Len())
	}
}

func TestImageCache_LoadMissing(t *testing.T) {
	if _, err := NewImageCache().Load("/nonexistent/scan.png"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImageCache_ConcurrentAccess(t *testing.T) {
	path := writePNG(t, createInMemoryImage(20, 20, color.White))
	cache := NewImageCache()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(path); err != nil {
				t.Errorf("Load failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if cache.Len() != 1 {
		t.Errorf("Len: got %d, want 1", cache.Len())
	}
}

func TestCrop(t *testing.T) {
	img := createInMemoryImage(100, 50, color.White)
	img.Set(20, 10, color.Black)

	region, err := Crop(img, geometry.FromCorners(20, 10, 60, 30))
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if region.Bounds() != image.Rect(0, 0, 40, 20) {
		t.Errorf("bounds: got %v", region.Bounds())
	}
	if r, _, _, _ := region.At(0, 0).RGBA(); r != 0 {
		t.Error("crop origin should hold the black pixel")
	}

	clamped, err := Crop(img, geometry.FromCorners(90, 40, 200, 200))
	if err != nil {
		t.Fatalf("Crop with overhang failed: %v", err)
	}
	if clamped.Bounds() != image.Rect(0, 0, 10, 10) {
		t.Errorf("clamped bounds: got %v", clamped.Bounds())
	}

	if _, err := Crop(img, geometry.FromCorners(200, 200, 300, 300)); err == nil {
		t.Error("expected error for region outside the image")
	}
}

func TestCropPNG_Scale(t *testing.T) {
	img := createInMemoryImage(100, 100, color.White)
	data, err := CropPNG(img, geometry.FromCorners(0, 0, 20, 10), 2)
	if err != nil {
		t.Fatalf("CropPNG failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid png: %v", err)
	}
	if decoded.Bounds().Dx() != 40 || decoded.Bounds().Dy() != 20 {
		t.Errorf("scaled size: got %v, want 40x20", decoded.Bounds())
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"landscape shrinks", 4000, 2000, 2000, 2000, 1000},
		{"portrait shrinks", 1000, 3000, 1500, 500, 1500},
		{"small unchanged", 800, 600, 2000, 800, 600},
		{"disabled", 5000, 5000, 0, 5000, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FitWithin(image.NewGray(image.Rect(0, 0, tt.w, tt.h)), tt.max)
			if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", got.Bounds().Dx(), got.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestRotate(t *testing.T) {
	img := createInMemoryImage(60, 20, color.White)
	img.Set(0, 0, color.Black)

	tests := []struct {
		degrees      int
		wantW, wantH int
		blackAt      image.Point
	}{
		{0, 60, 20, image.Pt(0, 0)},
		{90, 20, 60, image.Pt(0, 59)},
		{180, 60, 20, image.Pt(59, 19)},
		{270, 20, 60, image.Pt(19, 0)},
		{-90, 20, 60, image.Pt(19, 0)},
	}
	for _, tt := range tests {
		got := Rotate(img, tt.degrees)
		if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
			t.Errorf("%d°: got %v", tt.degrees, got.Bounds())
			continue
		}
		if r, _, _, _ := got.At(tt.blackAt.X, tt.blackAt.Y).RGBA(); r != 0 {
			t.Errorf("%d°: corner pixel not at %v", tt.degrees, tt.blackAt)
		}
	}
}

func TestEdgeMap_UniformHasNoEdges(t *testing.T) {
	edges := EdgeMap(createInMemoryImage(50, 50, color.RGBA{128, 128, 128, 255}), 50, 150)
	for _, v := range edges.Pix {
		if v != 0 {
			t.Fatal("uniform image should have no edges")
		}
	}
}

func TestEdgeMap_FindsRectangleBorder(t *testing.T) {
	img := createInMemoryImage(80, 80, color.White)
	for y := 20; y < 60; y++ {
		for x := 20; x < 60; x++ {
			img.Set(x, y, color.Black)
		}
	}

	edges := EdgeMap(img, 50, 150)
	if edges.GrayAt(40, 40).Y != 0 {
		t.Error("interior of a solid block is not an edge")
	}
	found := false
	for x := 17; x <= 22; x++ {
		if edges.GrayAt(x, 40).Y == 255 {
			found = true
		}
	}
	if !found {
		t.Error("expected an edge near the left border at x=20")
	}
}

func TestEdgeMap_TinyImage(t *testing.T) {
	edges := EdgeMap(createInMemoryImage(2, 2, color.Black), 50, 150)
	if edges.Bounds().Dx() != 2 {
		t.Errorf("bounds: got %v", edges.Bounds())
	}
}

func TestEdgeDetect_Encodes(t *testing.T) {
	result, err := EdgeDetect(createStripedImage(60, 60), 50, 150)
	if err != nil {
		t.Fatalf("EdgeDetect failed: %v", err)
	}
	if result.MimeType != "image/png" || result.Width != 60 || result.Height != 60 {
		t.Errorf("unexpected result header: %+v", result)
	}
	if result.EdgePixels == 0 {
		t.Error("striped image should have edges")
	}
	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("bad base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("bad png: %v", err)
	}
}

func TestAssessQuality_UniformDarkPage(t *testing.T) {
	report := AssessQuality(createInMemoryImage(300, 300, color.RGBA{10, 10, 10, 255}))

	if math.Abs(report.Brightness-10.0/255) > 1.0/255 {
		t.Errorf("Brightness: got %v, want %v", report.Brightness, 10.0/255)
	}
	if report.Contrast != 0 {
		t.Errorf("Contrast: got %v, want 0", report.Contrast)
	}
	if report.Sharpness != 0 {
		t.Errorf("Sharpness: got %v, want 0", report.Sharpness)
	}
	found := false
	for _, issue := range report.Issues {
		if issue == "image is too dark" {
			found = true
		}
	}
	if !found {
		t.Errorf("Issues: got %v, want too dark", report.Issues)
	}
}

func TestAssessQuality(t *testing.T) {
	tests := []struct {
		name     string
		img      image.Image
		suitable bool
	}{
		{"printed page", createStripedImage(300, 300), true},
		{"blank page", createInMemoryImage(300, 300, color.White), false},
		{"dark page", createInMemoryImage(300, 300, color.RGBA{10, 10, 10, 255}), false},
		{"too small", createInMemoryImage(2, 2, color.White), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := AssessQuality(tt.img)
			if report.Suitable != tt.suitable {
				t.Errorf("Suitable: got %v, want %v (issues %v)", report.Suitable, tt.suitable, report.Issues)
			}
			if !tt.suitable && len(report.Issues) == 0 {
				t.Error("unsuitable report should list issues")
			}
		})
	}
}
