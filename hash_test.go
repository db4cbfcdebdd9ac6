package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePNG(t *testing.T, dir, name string, shade func(x, y int) uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.SetGray(x, y, color.Gray{Y: shade(x, y)})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return path
}

func TestHashCommandPrintsDistanceForTwoImages(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", func(x, y int) uint8 { return uint8(x * 5) })
	b := writePNG(t, dir, "b.png", func(x, y int) uint8 { return uint8(x * 5) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"hash", "--no-progress", "--size", "8", a, b})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("hash command failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out.String())
	}
	if !strings.HasSuffix(lines[0], a) || len(strings.Fields(lines[0])[0]) != 16 {
		t.Fatalf("unexpected hash line %q", lines[0])
	}
	if lines[2] != "distance: 0/64" {
		t.Fatalf("unexpected distance line %q", lines[2])
	}
}

func TestHashFileRejectsCorruptImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := hashFile(path, 8); err == nil {
		t.Fatal("expected decode error")
	}
}
