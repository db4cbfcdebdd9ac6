package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/face-vision/internal/detection"
)

// acceleratorPaths are probed to decide whether a CUDA device is present.
var acceleratorPaths = []string{"/dev/nvidia0", "/proc/driver/nvidia/version"}

// AcceleratorPresent reports whether an NVIDIA device is visible.
func AcceleratorPresent() bool {
	for _, p := range acceleratorPaths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

type profilesFile struct {
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// LoadProfiles returns the built-in profiles, overlaid with path when set.
// Fields missing from a file entry keep the built-in value; new names start
// from the cpu profile.
func LoadProfiles(path string) (map[string]detection.Profile, error) {
	profiles := map[string]detection.Profile{
		ProfileGPU: detection.GPUProfile(),
		ProfileCPU: detection.CPUProfile(),
	}
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profiles file %s: %w", path, err)
	}
	for name, node := range file.Profiles {
		p, ok := profiles[name]
		if !ok {
			p = detection.CPUProfile()
		}
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		profiles[name] = p
	}
	return profiles, nil
}

// ResolveProfile picks the active profile. "auto" selects gpu when
// accelerated reports true and cpu otherwise.
func (c DetectorConfig) ResolveProfile(accelerated func() bool) (detection.Profile, error) {
	profiles, err := LoadProfiles(c.ProfilesFile)
	if err != nil {
		return detection.Profile{}, err
	}

	name := c.Profile
	if name == "" || name == ProfileAuto {
		name = ProfileCPU
		if accelerated != nil && accelerated() {
			name = ProfileGPU
		}
	}
	p, ok := profiles[name]
	if !ok {
		return detection.Profile{}, fmt.Errorf("unknown detector profile %q", name)
	}
	return p, nil
}
