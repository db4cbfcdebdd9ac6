// Package detection implements the adaptive multi-scale face detection
// strategy.
package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
)

// DetectorSource resolves a model to a loaded detector.
type DetectorSource interface {
	Detector(m detector.Model) (detector.Detector, bool)
}

// Options holds the input limits applied before detection.
type Options struct {
	AllowedExtensions []string
	MaxPixels         int
}

// DefaultOptions accepts jpg, jpeg and png up to the default pixel limit.
func DefaultOptions() Options {
	return Options{
		AllowedExtensions: []string{"jpg", "jpeg", "png"},
		MaxPixels:         imaging.DefaultMaxPixels,
	}
}

// Attempt records one (scale, model) detection pass.
type Attempt struct {
	Scale   int            `json:"scale"`
	Model   detector.Model `json:"model"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	Faces   int            `json:"faces"`
	Err     string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Outcome is the result of running the strategy on one image.
type Outcome struct {
	// Regions found by the winning attempt; empty when nothing was found.
	Regions []detector.Region
	// Descriptors aligned with Regions when the winning backend encoded
	// during detection; nil otherwise.
	Descriptors []detector.Descriptor
	// Image the regions refer to, or the last variant examined.
	Image *imaging.Image
	// Scale and Model of the winning attempt; zero values when none won.
	Scale    int
	Model    detector.Model
	Attempts []Attempt
}

// Found reports whether any face was located.
func (o *Outcome) Found() bool { return len(o.Regions) > 0 }

// Strategy escalates through scales and models until a face is found.
type Strategy struct {
	profile   Profile
	detectors []detector.Detector
	opts      Options
	logger    *zap.Logger
}

// NewStrategy binds the profile's models to detectors from source.
func NewStrategy(profile Profile, source DetectorSource, opts Options, logger *zap.Logger) (*Strategy, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	detectors := make([]detector.Detector, 0, len(profile.Models))
	for _, m := range profile.Models {
		d, ok := source.Detector(m)
		if !ok {
			return nil, fmt.Errorf("%w: %s (profile %s)", detector.ErrModelUnavailable, m, profile.Name)
		}
		detectors = append(detectors, d)
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = DefaultOptions().AllowedExtensions
	}
	return &Strategy{
		profile:   profile,
		detectors: detectors,
		opts:      opts,
		logger:    logger.Named("detection"),
	}, nil
}

// Profile returns the profile the strategy was built with.
func (s *Strategy) Profile() Profile { return s.profile }

// Detect validates the file name, decodes data and runs the strategy.
func (s *Strategy) Detect(ctx context.Context, filename string, data []byte) (*Outcome, error) {
	if err := imaging.CheckExtension(filename, s.opts.AllowedExtensions); err != nil {
		return nil, err
	}
	decoded, format, err := imaging.Decode(data, s.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	b := decoded.Bounds()
	s.logger.Info("decoded image",
		zap.String("filename", filename),
		zap.String("format", format),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
	)

	base, err := imaging.Normalize(decoded)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, base)
}

// Run executes the escalation on an already normalized image. Scales are
// tried smallest first and, within a scale, models in profile order. The
// first attempt that finds a face ends the search. Resource exhaustion and
// an invalid buffer shape abort immediately; other detector failures move on
// to the next attempt and only surface if every attempt failed.
func (s *Strategy) Run(ctx context.Context, base *imaging.Image) (*Outcome, error) {
	outcome := &Outcome{}
	var (
		lastErr  error
		failed   int
		attempts int
		previous *imaging.Image
	)

	for _, scale := range s.profile.Scales {
		variant := base.FitWithin(scale)
		if err := variant.Validate(); err != nil {
			return nil, fmt.Errorf("scale %d: %w", scale, err)
		}
		outcome.Image = variant

		// Detectors are deterministic, so an unchanged variant cannot find
		// anything the previous scale missed.
		if previous != nil && variant.Width() == previous.Width() && variant.Height() == previous.Height() {
			s.logger.Debug("variant unchanged, skipping scale", zap.Int("scale", scale))
			continue
		}
		previous = variant

		for _, d := range s.detectors {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			attempts++
			start := time.Now()
			found, err := d.Detect(variant)
			attempt := Attempt{
				Scale:   scale,
				Model:   d.Model(),
				Width:   variant.Width(),
				Height:  variant.Height(),
				Faces:   len(found),
				Elapsed: time.Since(start),
			}
			if err != nil {
				attempt.Err = err.Error()
			}
			outcome.Attempts = append(outcome.Attempts, attempt)

			fields := []zap.Field{
				zap.Int("scale", scale),
				zap.String("model", string(d.Model())),
				zap.Int("width", attempt.Width),
				zap.Int("height", attempt.Height),
				zap.Int("faces", len(found)),
				zap.Duration("elapsed", attempt.Elapsed),
			}
			if err != nil {
				if errors.Is(err, detector.ErrResourceExhausted) {
					s.logger.Error("detector exhausted resources", append(fields, zap.Error(err))...)
					return nil, fmt.Errorf("scale %d, model %s: %w", scale, d.Model(), err)
				}
				s.logger.Warn("detection attempt failed", append(fields, zap.Error(err))...)
				lastErr = err
				failed++
				continue
			}
			s.logger.Info("detection attempt finished", fields...)

			if len(found) > 0 {
				outcome.Scale = scale
				outcome.Model = d.Model()
				outcome.Regions, outcome.Descriptors = split(found)
				return outcome, nil
			}
		}
	}

	if attempts > 0 && failed == attempts {
		return nil, fmt.Errorf("all %d detection attempts failed: %w", attempts, lastErr)
	}
	return outcome, nil
}

// split separates regions from descriptors. Descriptors are only kept when
// every detection carries a full-length one.
func split(found []detector.Detection) ([]detector.Region, []detector.Descriptor) {
	regions := make([]detector.Region, len(found))
	descriptors := make([]detector.Descriptor, len(found))
	complete := true
	for i, d := range found {
		regions[i] = d.Region
		descriptors[i] = d.Descriptor
		if len(d.Descriptor) != detector.DescriptorSize {
			complete = false
		}
	}
	if !complete {
		return regions, nil
	}
	return regions, descriptors
}
