// Package overlay renders debug images with detected faces outlined and
// labelled.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
)

const (
	debugPrefix   = "debug_"
	strokeWidth   = 3
	labelOffsetX  = 5
	labelOffsetY  = 40
	defaultJPEGQ  = 90
	dirPermission = 0o755
)

var (
	boxColor   = color.RGBA{G: 255, A: 255}
	labelColor = color.RGBA{R: 255, A: 255}

	// ErrInvalidPath reports an original path or subdirectory that cannot
	// produce a debug location.
	ErrInvalidPath = errors.New("invalid debug path")
)

// DebugPath derives where the debug image for originalPath is written:
// <root>/<dir of original relative to root>/<subdir>/debug_<name>. With an
// empty root the image goes next to the original, under subdir. A relative
// originalPath is taken relative to root.
func DebugPath(originalPath, root, subdir string) (string, error) {
	if strings.TrimSpace(originalPath) == "" {
		return "", fmt.Errorf("%w: original path is empty", ErrInvalidPath)
	}
	if subdir == "" || subdir == "." || subdir == ".." || strings.ContainsAny(subdir, `/\`) {
		return "", fmt.Errorf("%w: subdirectory %q must be a single path element", ErrInvalidPath, subdir)
	}

	original := filepath.Clean(originalPath)
	name := filepath.Base(original)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q has no file name", ErrInvalidPath, originalPath)
	}

	if root == "" {
		return filepath.Join(filepath.Dir(original), subdir, debugPrefix+name), nil
	}

	root = filepath.Clean(root)
	rel := original
	if filepath.IsAbs(original) {
		var err error
		rel, err = filepath.Rel(root, original)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside %q", ErrInvalidPath, originalPath, root)
	}
	return filepath.Join(root, filepath.Dir(rel), subdir, debugPrefix+name), nil
}

// Renderer draws and saves debug overlays.
type Renderer struct {
	JPEGQuality int
}

// NewRenderer returns a renderer saving JPEGs at quality 90.
func NewRenderer() *Renderer {
	return &Renderer{JPEGQuality: defaultJPEGQ}
}

// Render draws a green box and a red "Face N" label for every region, N
// being the region's index, and writes the result to path. The directory is
// created when missing. Zero regions still produce an image.
func (r *Renderer) Render(img *imaging.Image, regions []detector.Region, path string) error {
	canvas := img.RGBA()
	for i, region := range regions {
		region = region.Clamp(canvas.Bounds().Dx(), canvas.Bounds().Dy())
		if region.Area() == 0 {
			continue
		}
		outline(canvas, region.Rect(), strokeWidth, boxColor)
		label(canvas, fmt.Sprintf("Face %d", i), region.Left+labelOffsetX, region.Bottom-labelOffsetY)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return fmt.Errorf("create debug directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create debug image: %w", err)
	}
	ext := imaging.Extension(path)
	if err := imaging.Encode(f, canvas, ext, r.JPEGQuality); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode debug image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write debug image: %w", err)
	}
	return nil
}

// outline strokes rect inwards with the given width.
func outline(dst draw.Image, rect image.Rectangle, width int, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+width),
		image.Rect(rect.Min.X, rect.Max.Y-width, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+width, rect.Max.Y),
		image.Rect(rect.Max.X-width, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(rect), src, image.Point{}, draw.Src)
	}
}

// label writes text with its top-left corner at (x, y).
func label(dst draw.Image, text string, x, y int) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}
