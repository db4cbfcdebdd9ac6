package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnsupportedType is returned for file names outside the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrCorruptImage is returned when the bytes cannot be decoded as an image.
	ErrCorruptImage = errors.New("invalid or corrupt image")
	// ErrTooLarge is returned when the decoded pixel count exceeds the limit.
	ErrTooLarge = errors.New("image exceeds pixel limit")
	// ErrInvalidShape is returned when a normalized buffer is not 3-channel.
	ErrInvalidShape = errors.New("image must be 3-channel RGB")
)

// DefaultMaxPixels bounds decoded images to roughly 89 megapixels.
const DefaultMaxPixels = 89478485

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// CheckExtension returns ErrUnsupportedType unless the extension of name is
// one of allowed.
func CheckExtension(name string, allowed []string) error {
	ext := Extension(name)
	for _, a := range allowed {
		if ext != "" && ext == strings.ToLower(a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedType, ext, strings.Join(allowed, ", "))
}

// Decode verifies and decodes data. The header is checked before any pixel
// data is allocated so oversized images are rejected cheaply. A maxPixels of
// zero or less applies DefaultMaxPixels.
func Decode(data []byte, maxPixels int) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrCorruptImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: zero dimension %dx%d", ErrCorruptImage, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	return img, format, nil
}
