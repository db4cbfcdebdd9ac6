// Package pico provides the pure-Go pico model backed by pigo cascades.
package pico

import (
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
)

const minCascadeSize = 32

// Params tunes the cascade scan.
type Params struct {
	MinSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float32
}

// DefaultParams mirrors the settings commonly used with the facefinder
// cascade.
func DefaultParams() Params {
	return Params{
		MinSize:      20,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5,
	}
}

// Detector runs an unpacked pigo cascade.
type Detector struct {
	classifier *pigo.Pigo
	params     Params
}

// Load reads and unpacks the cascade file at path.
func Load(path string, params Params) (*Detector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cascade: %w", err)
	}
	// pigo indexes the header without bounds checks.
	if len(data) < minCascadeSize {
		return nil, fmt.Errorf("unpack cascade: file too short (%d bytes)", len(data))
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &Detector{classifier: classifier, params: params}, nil
}

// Model implements detector.Detector.
func (d *Detector) Model() detector.Model { return detector.ModelPico }

// Detect implements detector.Detector. pigo does not produce descriptors.
func (d *Detector) Detect(img *imaging.Image) ([]detector.Detection, error) {
	cols, rows := img.Width(), img.Height()
	pixels := make([]uint8, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			pixels[y*cols+x] = img.Luma(x, y)
		}
	}

	params := pigo.CascadeParams{
		MinSize:     d.params.MinSize,
		MaxSize:     img.MaxDim(),
		ShiftFactor: d.params.ShiftFactor,
		ScaleFactor: d.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.params.IoUThreshold)

	out := make([]detector.Detection, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.params.MinQuality {
			continue
		}
		half := det.Scale / 2
		r := detector.Region{
			Top:    det.Row - half,
			Right:  det.Col + half,
			Bottom: det.Row + half,
			Left:   det.Col - half,
		}.Clamp(cols, rows)
		if r.Area() == 0 {
			continue
		}
		out = append(out, detector.Detection{Region: r})
	}
	return out, nil
}
