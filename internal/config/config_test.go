package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/example/face-vision/internal/detector"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "DETECTOR_PROFILE", "ALLOWED_EXTENSIONS", "MAX_UPLOAD_BYTES", "HASH_CACHE_TTL", "DEBUG_SUBDIR"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Detector.Profile != ProfileAuto || cfg.Debug.Subdir != "debug" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Detector.MaxUploadBytes != 32<<20 || cfg.Redis.HashCacheTTL != 24*time.Hour {
		t.Fatalf("unexpected limits %+v", cfg.Detector)
	}
	if !reflect.DeepEqual(cfg.Detector.AllowedExtensions, []string{"jpg", "jpeg", "png"}) {
		t.Fatalf("unexpected extensions %v", cfg.Detector.AllowedExtensions)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DETECTOR_PROFILE", "GPU")
	t.Setenv("ALLOWED_EXTENSIONS", " .JPG, png ,,webp")
	t.Setenv("HASH_CACHE_TTL", "1h")
	t.Setenv("MAX_IMAGE_PIXELS", "1000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Detector.Profile != ProfileGPU || cfg.Redis.HashCacheTTL != time.Hour || cfg.Detector.MaxImagePixels != 1000 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Detector.AllowedExtensions, []string{"jpg", "png", "webp"}) {
		t.Fatalf("unexpected extensions %v", cfg.Detector.AllowedExtensions)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "-5")
	t.Setenv("HASH_CACHE_TTL", "soon")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "MAX_UPLOAD_BYTES") || !strings.Contains(err.Error(), "HASH_CACHE_TTL") {
		t.Fatalf("expected both keys reported, got %v", err)
	}
}

func TestLoadRejectsNestedDebugSubdir(t *testing.T) {
	t.Setenv("DEBUG_SUBDIR", "a/b")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for nested subdir")
	}
}

func TestResolveProfileAuto(t *testing.T) {
	c := DetectorConfig{Profile: ProfileAuto}
	gpu, err := c.ResolveProfile(func() bool { return true })
	if err != nil || gpu.Name != ProfileGPU {
		t.Fatalf("expected gpu, got %q (%v)", gpu.Name, err)
	}
	cpu, err := c.ResolveProfile(func() bool { return false })
	if err != nil || cpu.Name != ProfileCPU {
		t.Fatalf("expected cpu, got %q (%v)", cpu.Name, err)
	}
	if _, err := (DetectorConfig{Profile: "tpu"}).ResolveProfile(nil); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestLoadProfilesOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  cpu:
    scales: [800, 1200]
    perceptual_hash: false
  fast:
    scales: [640]
    models: [pico, hog]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cpu := profiles[ProfileCPU]
	if !reflect.DeepEqual(cpu.Scales, []int{800, 1200}) || cpu.PerceptualHash || !cpu.QualityScoring {
		t.Fatalf("unexpected cpu profile %+v", cpu)
	}
	if !reflect.DeepEqual(cpu.Models, []detector.Model{detector.ModelHOG}) {
		t.Fatalf("models should keep the built-in value, got %v", cpu.Models)
	}
	fast := profiles["fast"]
	if fast.Name != "fast" || !reflect.DeepEqual(fast.Models, []detector.Model{detector.ModelPico, detector.ModelHOG}) {
		t.Fatalf("unexpected fast profile %+v", fast)
	}
	if profiles[ProfileGPU].Name != ProfileGPU {
		t.Fatal("gpu profile should be untouched")
	}
}

func TestLoadProfilesRejectsInvalidProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte("profiles:\n  cpu:\n    scales: [2000, 1000]\n"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := LoadProfiles(path); err == nil {
		t.Fatal("expected validation error")
	}
}
