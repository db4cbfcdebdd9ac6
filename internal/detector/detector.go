// Package detector defines the face location and encoding capabilities the
// detection strategy drives, independent of the backend implementing them.
package detector

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/example/face-vision/internal/imaging"
)

// DescriptorSize is the length of every face descriptor.
const DescriptorSize = 128

var (
	// ErrResourceExhausted reports that a model ran out of dedicated memory.
	// It is never downgraded to another model.
	ErrResourceExhausted = errors.New("detector resource exhausted")
	// ErrModelUnavailable is returned when a profile names a model that has
	// no loaded backend.
	ErrModelUnavailable = errors.New("detector model unavailable")
)

// Model names one face-location algorithm variant.
type Model string

const (
	// ModelCNN is dlib's MMOD network; accurate, needs an accelerator.
	ModelCNN Model = "cnn"
	// ModelHOG is dlib's HOG + linear SVM detector; runs anywhere.
	ModelHOG Model = "hog"
	// ModelPico is the pigo pixel-intensity cascade; cheapest, pure Go.
	ModelPico Model = "pico"
)

// ParseModel accepts a model name case-insensitively.
func ParseModel(s string) (Model, error) {
	switch m := Model(strings.ToLower(strings.TrimSpace(s))); m {
	case ModelCNN, ModelHOG, ModelPico:
		return m, nil
	default:
		return "", fmt.Errorf("unknown detector model %q", s)
	}
}

// Cost is the relative cost of one detection pass.
func (m Model) Cost() int {
	switch m {
	case ModelCNN:
		return 10
	case ModelHOG:
		return 3
	default:
		return 1
	}
}

// Accelerated reports whether the model requires a specialized compute
// device.
func (m Model) Accelerated() bool { return m == ModelCNN }

// Encodes reports whether the model yields descriptors while detecting.
// Regions found by other models go through an Encoder.
func (m Model) Encodes() bool { return m == ModelCNN || m == ModelHOG }

// Region bounds a face in pixel coordinates of the image it was found on.
type Region struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// RegionFromRect converts an image.Rectangle to a Region.
func RegionFromRect(r image.Rectangle) Region {
	return Region{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// Clamp trims the region to a width x height image.
func (r Region) Clamp(width, height int) Region {
	c := r.Rect().Intersect(image.Rect(0, 0, width, height))
	return RegionFromRect(c)
}

// Area returns the pixel area, zero for inverted regions.
func (r Region) Area() int {
	w, h := r.Right-r.Left, r.Bottom-r.Top
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// CSS returns the region as [top, right, bottom, left].
func (r Region) CSS() [4]int {
	return [4]int{r.Top, r.Right, r.Bottom, r.Left}
}

// IoU returns the intersection over union of two regions.
func (r Region) IoU(o Region) float64 {
	inter := RegionFromRect(r.Rect().Intersect(o.Rect())).Area()
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Cover returns the share of the smaller region that lies inside the other.
func (r Region) Cover(o Region) float64 {
	smaller := r.Area()
	if a := o.Area(); a < smaller {
		smaller = a
	}
	if smaller == 0 {
		return 0
	}
	inter := RegionFromRect(r.Rect().Intersect(o.Rect())).Area()
	return float64(inter) / float64(smaller)
}

// Center returns the midpoint of the region.
func (r Region) Center() image.Point {
	return image.Pt((r.Left+r.Right)/2, (r.Top+r.Bottom)/2)
}

// Descriptor is a face embedding of DescriptorSize elements.
type Descriptor []float32

// Detection is one located face. Backends that compute the descriptor as
// part of detection fill Descriptor; others leave it nil.
type Detection struct {
	Region     Region
	Descriptor Descriptor
}

// Detector locates faces on a normalized image with a single model. Calls
// block until the pass completes.
type Detector interface {
	Model() Model
	Detect(img *imaging.Image) ([]Detection, error)
}

// Encoder produces one descriptor per region, in order.
type Encoder interface {
	Encode(img *imaging.Image, regions []Region) ([]Descriptor, error)
}

// Registry holds the detectors available to this process.
type Registry struct {
	detectors map[Model]Detector
	encoder   Encoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[Model]Detector)}
}

// Register adds d, replacing any detector for the same model.
func (r *Registry) Register(d Detector) {
	r.detectors[d.Model()] = d
}

// SetEncoder installs the descriptor encoder.
func (r *Registry) SetEncoder(e Encoder) {
	r.encoder = e
}

// Encoder returns the installed encoder, or nil.
func (r *Registry) Encoder() Encoder {
	return r.encoder
}

// Detector looks up the detector for m.
func (r *Registry) Detector(m Model) (Detector, bool) {
	d, ok := r.detectors[m]
	return d, ok
}

// Models lists registered models, cheapest first.
func (r *Registry) Models() []Model {
	out := make([]Model, 0, len(r.detectors))
	for m := range r.detectors {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost() != out[j].Cost() {
			return out[i].Cost() < out[j].Cost()
		}
		return out[i] < out[j]
	})
	return out
}

var exhaustionMarkers = []string{
	"out of memory",
	"cudaerrormemoryallocation",
	"cuda_error_out_of_memory",
	"std::bad_alloc",
}

// IsExhaustionMessage reports whether a backend error message describes
// running out of device or host memory.
func IsExhaustionMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range exhaustionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
