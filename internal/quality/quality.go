// Package quality scores how usable a detected face crop is for
// recognition.
package quality

import (
	"math"

	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
)

const (
	sizeWeight       = 25
	sharpnessWeight  = 35
	brightnessWeight = 20
	contrastWeight   = 20

	fullSizeArea      = 10000
	fullSharpnessVar  = 500
	midGray           = 127
	fullContrastStdev = 50
)

// Details holds the weighted sub-scores.
type Details struct {
	Size       float64 `json:"size"`
	Sharpness  float64 `json:"sharpness"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
}

// Score is a face quality rating between 0 and 100.
type Score struct {
	Total   float64 `json:"total"`
	Details Details `json:"details"`
}

// Evaluate scores the face at r on img. Size uses the box as reported, even
// where it spills past the image edge. The pixel metrics use the box clamped
// to the image; an empty crop scores zero on each of them.
func Evaluate(img *imaging.Image, r detector.Region) Score {
	var d Details
	d.Size = round1(math.Min(float64(r.Area())/fullSizeArea, 1) * sizeWeight)

	r = r.Clamp(img.Width(), img.Height())
	if r.Area() > 0 {
		gray := crop(img, r)
		w, h := r.Right-r.Left, r.Bottom-r.Top
		mean, stdev := meanStdev(gray)
		d.Sharpness = round1(math.Min(laplacianVariance(gray, w, h)/fullSharpnessVar, 1) * sharpnessWeight)
		brightness := 1 - math.Abs(mean-midGray)/midGray
		d.Brightness = round1(math.Max(0, math.Min(brightness, 1)) * brightnessWeight)
		d.Contrast = round1(math.Min(stdev/fullContrastStdev, 1) * contrastWeight)
	}

	return Score{
		Total:   round1(d.Size + d.Sharpness + d.Brightness + d.Contrast),
		Details: d,
	}
}

// EvaluateAll scores each region in order.
func EvaluateAll(img *imaging.Image, regions []detector.Region) []Score {
	out := make([]Score, len(regions))
	for i, r := range regions {
		out[i] = Evaluate(img, r)
	}
	return out
}

func crop(img *imaging.Image, r detector.Region) []float64 {
	w, h := r.Right-r.Left, r.Bottom-r.Top
	gray := make([]float64, 0, w*h)
	for y := r.Top; y < r.Bottom; y++ {
		for x := r.Left; x < r.Right; x++ {
			gray = append(gray, float64(img.Luma(x, y)))
		}
	}
	return gray
}

func meanStdev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// laplacianVariance applies the 4-neighbour Laplacian with reflect-101
// borders and returns the population variance of the response.
func laplacianVariance(gray []float64, w, h int) float64 {
	if w == 0 || h == 0 {
		return 0
	}
	at := func(x, y int) float64 {
		return gray[reflect101(y, h)*w+reflect101(x, w)]
	}
	response := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x, y-1) + at(x-1, y) + at(x+1, y) + at(x, y+1) - 4*at(x, y)
			response = append(response, v)
		}
	}
	_, stdev := meanStdev(response)
	return stdev * stdev
}

// reflect101 mirrors i into [0, n) without repeating the edge sample.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
