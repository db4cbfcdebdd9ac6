// Package phash computes DCT perceptual hashes and compares them by
// Hamming distance.
package phash

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/bits"
	"sort"
	"strings"

	"golang.org/x/image/draw"
)

const (
	// MinSize and MaxSize bound the hash side length.
	MinSize = 4
	MaxSize = 32
	// DefaultSize yields a 64-bit hash.
	DefaultSize = 8

	highFreqFactor = 4
)

var (
	// ErrInvalidSize is returned for a hash size outside [MinSize, MaxSize].
	ErrInvalidSize = errors.New("invalid hash size")
	// ErrSizeMismatch is returned when comparing hashes of different sizes.
	ErrSizeMismatch = errors.New("hash size mismatch")
	// ErrInvalidHex is returned by ParseHex for malformed input.
	ErrInvalidHex = errors.New("invalid hash hex")
)

// Fingerprint is a size x size bit matrix stored row-major.
type Fingerprint struct {
	size  int
	words []uint64
}

// ValidateSize checks that size is within bounds.
func ValidateSize(size int) error {
	if size < MinSize || size > MaxSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidSize, size, MinSize, MaxSize)
	}
	return nil
}

// Compute hashes img. The image is reduced to gray, resampled to a
// (4*size)^2 square, transformed with a 2-D DCT-II, and each coefficient of
// the low-frequency size x size block is compared with the block median.
func Compute(img image.Image, size int) (Fingerprint, error) {
	if err := ValidateSize(size); err != nil {
		return Fingerprint{}, err
	}
	if img.Bounds().Empty() {
		return Fingerprint{}, errors.New("phash: empty image")
	}

	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)

	n := size * highFreqFactor
	small := image.NewGray(image.Rect(0, 0, n, n))
	draw.CatmullRom.Scale(small, small.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	pixels := make([]float64, n*n)
	for i, v := range small.Pix[:n*n] {
		pixels[i] = float64(v)
	}
	low := lowFrequencies(pixels, n, size)

	sorted := append([]float64(nil), low...)
	sort.Float64s(sorted)
	med := median(sorted)

	fp := newFingerprint(size)
	for i, v := range low {
		if v > med {
			fp.set(i)
		}
	}
	return fp, nil
}

// lowFrequencies returns the top-left k x k block of the unnormalized
// 2-D DCT-II of an n x n matrix, row-major.
func lowFrequencies(pixels []float64, n, k int) []float64 {
	cos := make([]float64, k*n)
	for u := 0; u < k; u++ {
		for x := 0; x < n; x++ {
			cos[u*n+x] = math.Cos(math.Pi * float64(u) * float64(2*x+1) / float64(2*n))
		}
	}

	// DCT along rows (axis 0): cols[u][x] = sum_y pixels[y][x] * cos(u, y).
	cols := make([]float64, k*n)
	for u := 0; u < k; u++ {
		for y := 0; y < n; y++ {
			c := cos[u*n+y]
			row := pixels[y*n : (y+1)*n]
			for x, p := range row {
				cols[u*n+x] += 2 * p * c
			}
		}
	}

	out := make([]float64, k*k)
	for u := 0; u < k; u++ {
		for v := 0; v < k; v++ {
			var sum float64
			for x := 0; x < n; x++ {
				sum += cols[u*n+x] * cos[v*n+x]
			}
			out[u*k+v] = 2 * sum
		}
	}
	return out
}

func median(sorted []float64) float64 {
	m := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[m]
	}
	return (sorted[m-1] + sorted[m]) / 2
}

func newFingerprint(size int) Fingerprint {
	return Fingerprint{size: size, words: make([]uint64, (size*size+63)/64)}
}

func (f Fingerprint) set(i int)      { f.words[i/64] |= 1 << (i % 64) }
func (f Fingerprint) bit(i int) bool { return f.words[i/64]&(1<<(i%64)) != 0 }

// Size returns the side length of the bit matrix.
func (f Fingerprint) Size() int { return f.size }

// Bits returns the number of bits in the hash.
func (f Fingerprint) Bits() int { return f.size * f.size }

// Distance returns the Hamming distance to other.
func (f Fingerprint) Distance(other Fingerprint) (int, error) {
	if f.size != other.size {
		return 0, fmt.Errorf("%w: %d vs %d", ErrSizeMismatch, f.size, other.size)
	}
	d := 0
	for i := range f.words {
		d += bits.OnesCount64(f.words[i] ^ other.words[i])
	}
	return d, nil
}

// Hex renders the bits row-major, most significant first, as lowercase hex
// left-padded to whole nibbles.
func (f Fingerprint) Hex() string {
	n := f.Bits()
	digits := (n + 3) / 4
	pad := digits*4 - n

	var sb strings.Builder
	sb.Grow(digits)
	for d := 0; d < digits; d++ {
		var nibble byte
		for j := 0; j < 4; j++ {
			i := d*4 + j - pad
			nibble <<= 1
			if i >= 0 && f.bit(i) {
				nibble |= 1
			}
		}
		sb.WriteByte("0123456789abcdef"[nibble])
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string { return f.Hex() }

// ParseHex decodes a hash produced by Hex for the given size.
func ParseHex(s string, size int) (Fingerprint, error) {
	if err := ValidateSize(size); err != nil {
		return Fingerprint{}, err
	}
	n := size * size
	digits := (n + 3) / 4
	if len(s) != digits {
		return Fingerprint{}, fmt.Errorf("%w: want %d digits, got %d", ErrInvalidHex, digits, len(s))
	}
	pad := digits*4 - n

	fp := newFingerprint(size)
	for d := 0; d < digits; d++ {
		nibble := strings.IndexByte("0123456789abcdef", lowerHex(s[d]))
		if nibble < 0 {
			return Fingerprint{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
		}
		for j := 0; j < 4; j++ {
			if nibble&(1<<(3-j)) == 0 {
				continue
			}
			i := d*4 + j - pad
			if i < 0 {
				return Fingerprint{}, fmt.Errorf("%w: padding bits set in %q", ErrInvalidHex, s)
			}
			fp.set(i)
		}
	}
	return fp, nil
}

func lowerHex(c byte) byte {
	if c >= 'A' && c <= 'F' {
		return c + ('a' - 'A')
	}
	return c
}
