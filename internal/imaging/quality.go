package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"gonum.org/v1/gonum/stat"
)

// Quality thresholds for a scan to be worth analysing.
const (
	MinBrightness = 0.20 // mean luminance, 0-1
	MaxBrightness = 0.95
	MinContrast   = 0.08  // luminance standard deviation, 0-1
	MinSharpness  = 100.0 // variance of the Laplacian on 0-255 luminance
)

// qualityMaxDim bounds the working copy so sharpness is comparable across
// scan resolutions.
const qualityMaxDim = 1000

// QualityReport describes whether a scan is clear enough to analyse.
type QualityReport struct {
	Brightness float64  `json:"brightness"`
	Contrast   float64  `json:"contrast"`
	Sharpness  float64  `json:"sharpness"`
	Suitable   bool     `json:"is_suitable"`
	Issues     []string `json:"issues"`
}

// AssessQuality measures brightness, contrast and focus of a scan.
//
// Sharpness is the variance of the 4-neighbour Laplacian, a standard focus
// measure: blurred or motion-smeared photos have few strong second
// derivatives and score low.
func AssessQuality(img image.Image) QualityReport {
	gray := effect.Grayscale(FitWithin(img, qualityMaxDim))
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	report := QualityReport{Issues: []string{}}
	if w < 3 || h < 3 {
		report.Issues = append(report.Issues, "image is too small")
		return report
	}

	// Grayscale yields RGBA with equal channels; read R.
	lum := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			lum = append(lum, float64(row[x*4]))
		}
	}

	lap := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := lum[y*w+x]
			v := lum[(y-1)*w+x] + lum[(y+1)*w+x] + lum[y*w+x-1] + lum[y*w+x+1] - 4*c
			lap = append(lap, v)
		}
	}

	mean, std := stat.MeanStdDev(lum, nil)
	report.Brightness = mean / 255
	report.Contrast = std / 255
	report.Sharpness = stat.Variance(lap, nil)

	switch {
	case report.Brightness < MinBrightness:
		report.Issues = append(report.Issues, "image is too dark")
	case report.Brightness > MaxBrightness:
		report.Issues = append(report.Issues, "image is overexposed or blank")
	}
	if report.Contrast < MinContrast {
		report.Issues = append(report.Issues, "contrast is too low")
	}
	if report.Sharpness < MinSharpness {
		report.Issues = append(report.Issues, "image is blurry")
	}
	report.Suitable = len(report.Issues) == 0
	return report
}
