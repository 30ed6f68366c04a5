package upscale

import (
	"math"

	"github.com/portraitlab/capture-pipeline/internal/pixel"
)

// Mitchell-Netravali cubic filter parameters (B = C = 1/3).
const (
	mitchellB = 1.0 / 3.0
	mitchellC = 1.0 / 3.0

	// taps per axis on each side of the source coordinate
	supportRadius = 2
)

// Config holds upscaler tuning.
type Config struct {
	// SharpenAmount scales the post-resample edge enhancement.
	SharpenAmount float64

	// NoiseThreshold is the minimum luminance detail that counts as an
	// edge; differences below it are left untouched so flat or noisy
	// regions are not amplified.
	NoiseThreshold float64
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.SharpenAmount <= 0 {
		c.SharpenAmount = 0.3
	}
	if c.NoiseThreshold <= 0 {
		c.NoiseThreshold = 10
	}
}

// Upscaler enlarges images by an integer factor using Mitchell-Netravali
// resampling followed by a luminance-aware sharpen.
type Upscaler struct {
	cfg Config
}

// New creates an upscaler.
func New(cfg Config) *Upscaler {
	cfg.WithDefaults()
	return &Upscaler{cfg: cfg}
}

// Process returns the image enlarged by factor. The factor is clamped to an
// integer >= 1; factor 1 is a passthrough copy.
func (u *Upscaler) Process(img *pixel.Buffer, factor int) *pixel.Buffer {
	if factor < 1 {
		factor = 1
	}
	if factor == 1 {
		return img.Clone()
	}
	resampled := resample(img, factor)
	return u.sharpen(resampled)
}

// mitchell evaluates the Mitchell-Netravali kernel at distance x.
func mitchell(x float64) float64 {
	x = math.Abs(x)
	x2 := x * x
	x3 := x2 * x
	switch {
	case x < 1:
		return ((12-9*mitchellB-6*mitchellC)*x3 +
			(-18+12*mitchellB+6*mitchellC)*x2 +
			(6 - 2*mitchellB)) / 6
	case x < 2:
		return ((-mitchellB-6*mitchellC)*x3 +
			(6*mitchellB+30*mitchellC)*x2 +
			(-12*mitchellB-48*mitchellC)*x +
			(8*mitchellB + 24*mitchellC)) / 6
	default:
		return 0
	}
}

// resample performs the cubic convolution over a 5x5 support window per
// destination pixel. Source coordinates use the half-pixel-center mapping
// and clamp to the source bounds.
func resample(src *pixel.Buffer, factor int) *pixel.Buffer {
	w, h := src.Width, src.Height
	dw, dh := w*factor, h*factor
	dst := &pixel.Buffer{Width: dw, Height: dh, Pix: make([]byte, dw*dh*4)}

	for dy := 0; dy < dh; dy++ {
		srcY := (float64(dy)+0.5)/float64(factor) - 0.5
		baseY := int(math.Floor(srcY))

		for dx := 0; dx < dw; dx++ {
			srcX := (float64(dx)+0.5)/float64(factor) - 0.5
			baseX := int(math.Floor(srcX))

			var sumR, sumG, sumB, sumA, sumW float64
			for ty := -supportRadius; ty <= supportRadius; ty++ {
				sy := clamp(baseY+ty, 0, h-1)
				wy := mitchell(srcY - float64(baseY+ty))
				if wy == 0 {
					continue
				}
				for tx := -supportRadius; tx <= supportRadius; tx++ {
					sx := clamp(baseX+tx, 0, w-1)
					wgt := wy * mitchell(srcX-float64(baseX+tx))
					if wgt == 0 {
						continue
					}
					p := src.Offset(sx, sy)
					sumR += wgt * float64(src.Pix[p])
					sumG += wgt * float64(src.Pix[p+1])
					sumB += wgt * float64(src.Pix[p+2])
					sumA += wgt * float64(src.Pix[p+3])
					sumW += wgt
				}
			}

			// near-zero weight sums leave the destination at its
			// zero-initialized default
			if math.Abs(sumW) < 1e-8 {
				continue
			}
			dst.Set(dx, dy,
				clampByte(sumR/sumW),
				clampByte(sumG/sumW),
				clampByte(sumB/sumW),
				clampByte(sumA/sumW))
		}
	}
	return dst
}

// sharpen scales RGB where the center luminance deviates from the
// 4-neighbor average by more than the noise threshold. Alpha passes
// through unmodified.
func (u *Upscaler) sharpen(src *pixel.Buffer) *pixel.Buffer {
	w, h := src.Width, src.Height
	dst := src.Clone()

	lumAt := func(x, y int) float64 {
		r, g, b, _ := src.At(clamp(x, 0, w-1), clamp(y, 0, h-1))
		return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := lumAt(x, y)
			avg := (lumAt(x-1, y) + lumAt(x+1, y) + lumAt(x, y-1) + lumAt(x, y+1)) / 4
			detail := math.Abs(center - avg)
			if detail <= u.cfg.NoiseThreshold {
				continue
			}
			scale := 1 + u.cfg.SharpenAmount*detail/255
			p := src.Offset(x, y)
			dst.Pix[p] = clampByte(float64(src.Pix[p]) * scale)
			dst.Pix[p+1] = clampByte(float64(src.Pix[p+1]) * scale)
			dst.Pix[p+2] = clampByte(float64(src.Pix[p+2]) * scale)
		}
	}
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
