package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Normalize converts any decoded image into a canonical 3-channel 8-bit
// Image. Color is taken un-premultiplied and alpha is then discarded without
// compositing. Gray and palette images are expanded; 16-bit samples are
// reduced to their high byte.
func Normalize(src image.Image) (*Image, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var out *Image
	switch src.(type) {
	case *image.YCbCr:
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
		out = fromRGBA(rgba)
	default:
		out = &Image{width: w, height: h, channels: Channels, pix: expand(src)}
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// expand copies non-premultiplied samples of src into a packed RGB slice.
func expand(src image.Image) []uint8 {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h*Channels)

	switch s := src.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			row := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				i := (y*w + x) * Channels
				pix[i], pix[i+1], pix[i+2] = row[x*4], row[x*4+1], row[x*4+2]
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				i := (y*w + x) * Channels
				p := row[x*4 : x*4+4]
				if p[3] == 0xff {
					pix[i], pix[i+1], pix[i+2] = p[0], p[1], p[2]
					continue
				}
				c := color.NRGBAModel.Convert(color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}).(color.NRGBA)
				pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				i := (y*w + x) * Channels
				v := row[x]
				pix[i], pix[i+1], pix[i+2] = v, v, v
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := (y*w + x) * Channels
				pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
			}
		}
	}
	return pix
}

// FitWithin returns a variant of m whose larger side is at most maxDim,
// preserving aspect ratio. Images already within the bound are returned
// as-is; images are never upscaled. Resampling uses Catmull-Rom.
func (m *Image) FitWithin(maxDim int) *Image {
	w, h := FitSize(m.width, m.height, maxDim)
	if w == m.width && h == m.height {
		return m
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), m.RGBA(), m.Bounds(), draw.Src, nil)
	return fromRGBA(dst)
}

// FitSize computes the dimensions FitWithin would produce. Scaled sides are
// truncated and never drop below one pixel.
func FitSize(width, height, maxDim int) (int, int) {
	larger := width
	if height > larger {
		larger = height
	}
	if maxDim <= 0 || larger <= maxDim {
		return width, height
	}
	scale := float64(maxDim) / float64(larger)
	w := int(float64(width) * scale)
	h := int(float64(height) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
