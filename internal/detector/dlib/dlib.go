// Package dlib provides the cnn and hog detector models and the descriptor
// encoder on top of dlib through go-face.
package dlib

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Kagami/go-face"
	"go.uber.org/zap"

	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
)

// jpegQuality is used when handing normalized buffers to dlib, which only
// accepts encoded JPEG input.
const jpegQuality = 95

// minEncodeIoU is the overlap a re-detected face needs to be accepted as the
// same face when encoding caller-supplied regions.
const minEncodeIoU = 0.5

// minEncodeCover accepts a re-detected face that sits inside a looser box,
// such as the square boxes pigo reports, when IoU alone falls short.
const minEncodeCover = 0.8

// Recognizer wraps a go-face recognizer. dlib's recognizer is not safe for
// concurrent use, so every call is serialized.
type Recognizer struct {
	mu     sync.Mutex
	rec    *face.Recognizer
	cnn    bool
	logger *zap.Logger
}

// Open loads the dlib models from modelsDir. useCNN enables the cnn model,
// which needs a CUDA build of dlib to be practical.
func Open(modelsDir string, useCNN bool, logger *zap.Logger) (*Recognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", modelsDir, err)
	}
	return &Recognizer{rec: rec, cnn: useCNN, logger: logger.Named("dlib")}, nil
}

// Close releases the native recognizer.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
}

// Register adds the available models and the encoder to reg.
func (r *Recognizer) Register(reg *detector.Registry) {
	reg.Register(&modelDetector{rec: r, model: detector.ModelHOG})
	if r.cnn {
		reg.Register(&modelDetector{rec: r, model: detector.ModelCNN})
	}
	reg.SetEncoder(r)
}

// Encode returns a descriptor for each region by re-running dlib on img and
// pairing its faces with the requested regions by overlap.
func (r *Recognizer) Encode(img *imaging.Image, regions []detector.Region) ([]detector.Descriptor, error) {
	if len(regions) == 0 {
		return nil, nil
	}

	models := []detector.Model{detector.ModelHOG}
	if r.cnn {
		models = append(models, detector.ModelCNN)
	}

	out := make([]detector.Descriptor, len(regions))
	missing := len(regions)
	for _, m := range models {
		found, err := r.recognize(m, img)
		if err != nil {
			return nil, err
		}
		used := make([]bool, len(found))
		for i, want := range regions {
			if out[i] != nil {
				continue
			}
			if j, ok := bestMatch(want, found, used); ok {
				out[i] = found[j].Descriptor
				used[j] = true
				missing--
			}
		}
		if missing == 0 {
			return out, nil
		}
	}
	return nil, fmt.Errorf("dlib: %d of %d regions could not be encoded", missing, len(regions))
}

// bestMatch picks the unused face in found that best matches want. A face
// matches on IoU, or when it lies mostly inside want with its center in want.
func bestMatch(want detector.Region, found []detector.Detection, used []bool) (int, bool) {
	best, score := -1, 0.0
	for j, d := range found {
		if used[j] || !matches(want, d.Region) {
			continue
		}
		if iou := want.IoU(d.Region); best < 0 || iou > score {
			best, score = j, iou
		}
	}
	return best, best >= 0
}

func matches(want, got detector.Region) bool {
	if want.IoU(got) >= minEncodeIoU {
		return true
	}
	return want.Cover(got) >= minEncodeCover && got.Center().In(want.Rect())
}

func (r *Recognizer) recognize(m detector.Model, img *imaging.Image) ([]detector.Detection, error) {
	data, err := imaging.EncodeJPEG(img, jpegQuality)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return nil, errors.New("dlib: recognizer closed")
	}

	start := time.Now()
	var faces []face.Face
	switch m {
	case detector.ModelCNN:
		faces, err = r.rec.RecognizeCNN(data)
	case detector.ModelHOG:
		faces, err = r.rec.Recognize(data)
	default:
		return nil, fmt.Errorf("%w: dlib does not provide %q", detector.ErrModelUnavailable, m)
	}
	if err != nil {
		if detector.IsExhaustionMessage(err.Error()) {
			return nil, fmt.Errorf("dlib %s: %w: %v", m, detector.ErrResourceExhausted, err)
		}
		return nil, fmt.Errorf("dlib %s: %w", m, err)
	}
	r.logger.Debug("dlib pass finished",
		zap.String("model", string(m)),
		zap.Int("faces", len(faces)),
		zap.Duration("elapsed", time.Since(start)),
	)

	out := make([]detector.Detection, len(faces))
	for i, f := range faces {
		desc := make(detector.Descriptor, detector.DescriptorSize)
		copy(desc, f.Descriptor[:])
		out[i] = detector.Detection{
			Region:     detector.RegionFromRect(f.Rectangle),
			Descriptor: desc,
		}
	}
	return out, nil
}

type modelDetector struct {
	rec   *Recognizer
	model detector.Model
}

func (d *modelDetector) Model() detector.Model { return d.model }

func (d *modelDetector) Detect(img *imaging.Image) ([]detector.Detection, error) {
	return d.rec.recognize(d.model, img)
}
