package overlay

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
)

func TestDebugPath(t *testing.T) {
	tests := []struct {
		name     string
		original string
		root     string
		subdir   string
		want     string
	}{
		{"under root", "/mnt/photos/2023/trip/img.jpg", "/mnt/photos", "debug", "/mnt/photos/2023/trip/debug/debug_img.jpg"},
		{"at root", "/mnt/photos/img.png", "/mnt/photos", "faces", "/mnt/photos/faces/debug_img.png"},
		{"uncleaned", "/mnt/photos/a/../b/img.jpg", "/mnt/photos/", "debug", "/mnt/photos/b/debug/debug_img.jpg"},
		{"relative to root", "2023/img.jpg", "/mnt/photos", "debug", "/mnt/photos/2023/debug/debug_img.jpg"},
		{"no root", "/data/a/img.jpg", "", "debug", "/data/a/debug/debug_img.jpg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DebugPath(tc.original, tc.root, tc.subdir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != filepath.FromSlash(tc.want) {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDebugPathRejectsEscapes(t *testing.T) {
	tests := []struct {
		name     string
		original string
		root     string
		subdir   string
	}{
		{"outside root", "/etc/passwd.jpg", "/mnt/photos", "debug"},
		{"relative escape", "../../etc/x.jpg", "/mnt/photos", "debug"},
		{"nested subdir", "/mnt/photos/img.jpg", "/mnt/photos", "a/b"},
		{"parent subdir", "/mnt/photos/img.jpg", "/mnt/photos", ".."},
		{"empty subdir", "/mnt/photos/img.jpg", "/mnt/photos", ""},
		{"empty original", "", "/mnt/photos", "debug"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DebugPath(tc.original, tc.root, tc.subdir); !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("expected ErrInvalidPath, got %v", err)
			}
		})
	}
}

func blank(t *testing.T, w, h int) *imaging.Image {
	t.Helper()
	img, err := imaging.Normalize(image.NewRGBA(image.Rect(0, 0, w, h)))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	return img
}

func TestRenderDrawsBoxesAndCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "debug", "debug_img.png")
	img := blank(t, 200, 150)
	regions := []detector.Region{{Top: 60, Right: 120, Bottom: 140, Left: 20}}

	if err := NewRenderer().Render(img, regions, path); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("debug image missing: %v", err)
	}
	defer f.Close()
	out, err := png.Decode(f)
	if err != nil {
		t.Fatalf("debug image unreadable: %v", err)
	}
	if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 150 {
		t.Fatalf("unexpected size %v", out.Bounds())
	}

	r, g, b, _ := out.At(21, 61).RGBA()
	if r != 0 || g>>8 != 255 || b != 0 {
		t.Fatalf("expected green outline, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
	if r, g, b, _ := out.At(70, 130).RGBA(); r|g|b != 0 {
		t.Fatal("interior should be untouched away from the label")
	}
	if img.Luma(21, 61) != 0 {
		t.Fatal("render must not modify the source image")
	}
}

func TestRenderWithoutRegions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug", "debug_img.jpg")
	if err := NewRenderer().Render(blank(t, 40, 30), nil, path); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected debug image: %v", err)
	}
}

func TestRenderReportsUnwritableLocation(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	err := NewRenderer().Render(blank(t, 10, 10), nil, filepath.Join(blocker, "debug", "debug_img.jpg"))
	if err == nil {
		t.Fatal("expected an error when the directory cannot be created")
	}
}
