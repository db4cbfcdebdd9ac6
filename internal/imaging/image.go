// Package imaging turns uploaded bytes into canonical 3-channel 8-bit
// buffers and derives resized variants of them.
package imaging

import (
	"fmt"
	"image"
	"image/color"
)

// Channels is the number of interleaved samples per pixel in an Image.
const Channels = 3

// Image is an immutable RGB pixel buffer with 8 bits per sample. Values are
// created by Normalize or derived with FitWithin and are never modified in
// place.
type Image struct {
	width    int
	height   int
	channels int
	pix      []uint8
}

// Width returns the width in pixels.
func (m *Image) Width() int { return m.width }

// Height returns the height in pixels.
func (m *Image) Height() int { return m.height }

// Channels returns the number of samples per pixel.
func (m *Image) Channels() int { return m.channels }

// MaxDim returns the larger of width and height.
func (m *Image) MaxDim() int {
	if m.width > m.height {
		return m.width
	}
	return m.height
}

// Validate reports ErrInvalidShape unless the buffer holds exactly three
// 8-bit channels for every pixel.
func (m *Image) Validate() error {
	if m == nil || m.width <= 0 || m.height <= 0 {
		return fmt.Errorf("%w: empty image", ErrInvalidShape)
	}
	if m.channels != Channels || len(m.pix) != m.width*m.height*Channels {
		return fmt.Errorf("%w: got %dx%dx%d (%d bytes)", ErrInvalidShape, m.height, m.width, m.channels, len(m.pix))
	}
	return nil
}

// RGB returns the samples of pixel (x, y).
func (m *Image) RGB(x, y int) (r, g, b uint8) {
	i := (y*m.width + x) * Channels
	return m.pix[i], m.pix[i+1], m.pix[i+2]
}

// Luma returns the BT.601 gray level of pixel (x, y) using the same
// fixed-point rounding as OpenCV's RGB2GRAY conversion.
func (m *Image) Luma(x, y int) uint8 {
	r, g, b := m.RGB(x, y)
	return uint8((uint32(r)*4899 + uint32(g)*9617 + uint32(b)*1868 + 8192) >> 14)
}

// ColorModel implements image.Image.
func (m *Image) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (m *Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.width, m.height) }

// At implements image.Image.
func (m *Image) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.Bounds()) {
		return color.RGBA{}
	}
	r, g, b := m.RGB(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// RGBA returns an opaque copy of the image that callers may draw on.
func (m *Image) RGBA() *image.RGBA {
	dst := image.NewRGBA(m.Bounds())
	for i, j := 0, 0; i < len(m.pix); i, j = i+Channels, j+4 {
		dst.Pix[j] = m.pix[i]
		dst.Pix[j+1] = m.pix[i+1]
		dst.Pix[j+2] = m.pix[i+2]
		dst.Pix[j+3] = 0xff
	}
	return dst
}

// fromRGBA packs an RGBA buffer into a new Image, dropping alpha.
func fromRGBA(src *image.RGBA) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h*Channels)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		out := pix[y*w*Channels : (y+1)*w*Channels]
		for x := 0; x < w; x++ {
			out[x*3] = row[x*4]
			out[x*3+1] = row[x*4+1]
			out[x*3+2] = row[x*4+2]
		}
	}
	return &Image{width: w, height: h, channels: Channels, pix: pix}
}
