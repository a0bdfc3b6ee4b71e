package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// EdgeDetectResult is an edge map encoded for transport.
type EdgeDetectResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	EdgePixels  int    `json:"edge_pixels"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EdgeMap runs Canny edge detection and returns a binary map: 255 on edges,
// 0 elsewhere. The map has its origin at (0,0).
//
// Thresholds are gradient magnitudes on a 0-255 scale. Pixels above
// thresholdHigh are edges; pixels between the two thresholds are edges only
// when connected, through other such pixels, to a strong edge.
//
// # Algorithm
//
//  1. Luminance conversion and a Gaussian blur (radius 1.4) to damp scan noise
//  2. Sobel gradients: magnitude sqrt(Gx² + Gy²) and direction atan2(Gy, Gx)
//  3. Non-maximum suppression along the gradient direction, thinning ridges
//     to one pixel
//  4. Hysteresis: flood outward from strong pixels through weak ones
//
// Typical thresholds for printed forms are 50/150.
func EdgeMap(img image.Image, thresholdLow, thresholdHigh int) *image.Gray {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	if width < 3 || height < 3 {
		return out
	}

	smooth := blur.Gaussian(effect.Grayscale(img), 1.4)
	lum := make([]float64, width*height)
	for y := 0; y < height; y++ {
		row := smooth.Pix[y*smooth.Stride:]
		for x := 0; x < width; x++ {
			lum[y*width+x] = float64(row[x*4]) / 255.0
		}
	}

	at := func(x, y int) float64 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return lum[y*width+x]
	}

	mag := make([]float64, width*height)
	dir := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) -
				2*at(x-1, y) + 2*at(x+1, y) -
				at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			mag[y*width+x] = math.Hypot(gx, gy)
			dir[y*width+x] = math.Atan2(gy, gx)
		}
	}

	thin := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			dx, dy := neighbourStep(dir[i])
			if mag[i] >= mag[(y+dy)*width+x+dx] && mag[i] >= mag[(y-dy)*width+x-dx] {
				thin[i] = mag[i]
			}
		}
	}

	low := float64(thresholdLow) / 255.0
	high := float64(thresholdHigh) / 255.0

	stack := make([]int, 0, 256)
	for i, v := range thin {
		if v >= high && out.Pix[i] == 0 {
			out.Pix[i] = 255
			stack = append(stack, i)
		}
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			jx, jy := j%width, j/width
			for ny := jy - 1; ny <= jy+1; ny++ {
				for nx := jx - 1; nx <= jx+1; nx++ {
					if nx < 0 || ny < 0 || nx >= width || ny >= height {
						continue
					}
					k := ny*width + nx
					if out.Pix[k] == 0 && thin[k] >= low {
						out.Pix[k] = 255
						stack = append(stack, k)
					}
				}
			}
		}
	}

	return out
}

// neighbourStep quantises a gradient angle to the pixel offset of the
// neighbour lying along it.
func neighbourStep(angle float64) (int, int) {
	a := math.Mod(angle+math.Pi, math.Pi) // fold onto [0, π)
	switch {
	case a < math.Pi/8 || a >= 7*math.Pi/8:
		return 1, 0
	case a < 3*math.Pi/8:
		return 1, 1
	case a < 5*math.Pi/8:
		return 0, 1
	default:
		return -1, 1
	}
}

// EdgeDetect runs EdgeMap and encodes the result as a base64 PNG.
func EdgeDetect(img image.Image, thresholdLow, thresholdHigh int) (*EdgeDetectResult, error) {
	edges := EdgeMap(img, thresholdLow, thresholdHigh)

	count := 0
	for _, v := range edges.Pix {
		if v != 0 {
			count++
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, edges); err != nil {
		return nil, fmt.Errorf("failed to encode edge image: %w", err)
	}

	return &EdgeDetectResult{
		Width:       edges.Bounds().Dx(),
		Height:      edges.Bounds().Dy(),
		EdgePixels:  count,
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
