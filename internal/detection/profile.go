package detection

import (
	"errors"
	"fmt"

	"github.com/example/face-vision/internal/detector"
)

// Profile bundles the scales, models and optional features of a deployment.
// It is fixed at startup.
type Profile struct {
	Name           string           `yaml:"name"`
	Scales         []int            `yaml:"scales"`
	Models         []detector.Model `yaml:"models"`
	QualityScoring bool             `yaml:"quality_scoring"`
	PerceptualHash bool             `yaml:"perceptual_hash"`
}

// GPUProfile runs the accelerated model first at each scale and falls back
// to hog.
func GPUProfile() Profile {
	return Profile{
		Name:           "gpu",
		Scales:         []int{1600, 2000, 2600},
		Models:         []detector.Model{detector.ModelCNN, detector.ModelHOG},
		QualityScoring: true,
		PerceptualHash: true,
	}
}

// CPUProfile only uses hog, at smaller scales.
func CPUProfile() Profile {
	return Profile{
		Name:           "cpu",
		Scales:         []int{1200, 1600, 2000},
		Models:         []detector.Model{detector.ModelHOG},
		QualityScoring: true,
		PerceptualHash: true,
	}
}

// Accelerated reports whether any model in the profile needs an
// accelerator.
func (p Profile) Accelerated() bool {
	for _, m := range p.Models {
		if m.Accelerated() {
			return true
		}
	}
	return false
}

// Validate checks that scales are positive and strictly increasing and that
// models are known and not repeated.
func (p Profile) Validate() error {
	if len(p.Scales) == 0 {
		return errors.New("profile: no scales configured")
	}
	for i, s := range p.Scales {
		if s <= 0 {
			return fmt.Errorf("profile: scale %d must be positive", s)
		}
		if i > 0 && s <= p.Scales[i-1] {
			return fmt.Errorf("profile: scales must be strictly increasing, got %v", p.Scales)
		}
	}
	if len(p.Models) == 0 {
		return errors.New("profile: no models configured")
	}
	seen := make(map[detector.Model]bool, len(p.Models))
	for _, m := range p.Models {
		if _, err := detector.ParseModel(string(m)); err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		if seen[m] {
			return fmt.Errorf("profile: model %q listed twice", m)
		}
		seen[m] = true
	}
	return nil
}
