package segment

import (
	"math"

	"github.com/portraitlab/capture-pipeline/internal/pixel"
)

// Alpha bands for the color-distance ramp, as fractions of full opacity.
// Pixels below floodSeedAlpha on the border seed the flood fill; pixels
// below floodPassAlpha are floodable.
const (
	floodSeedAlpha = 0.5
	floodPassAlpha = 0.8
)

// removeByColor estimates the background color, ramps per-pixel alpha by
// RGB distance, then flood-fills from the border so that only regions
// actually connected to the edge of the frame are removed. Interior pixels
// that merely resemble the background (skin against a beige backdrop) stay
// opaque.
func (r *Remover) removeByColor(img *pixel.Buffer) *pixel.Buffer {
	var target [3]byte
	if r.cfg.TargetColor != nil {
		target = *r.cfg.TargetColor
	} else {
		target = estimateBackground(img)
	}

	w, h := img.Width, img.Height
	tol := r.cfg.Tolerance

	// Ramped alpha per pixel, 0..1. Only used to drive the flood fill;
	// the final output is binary per flood-connectivity.
	alpha := make([]float64, w*h)
	for i := 0; i < w*h; i++ {
		p := i * 4
		d := colorDistance(img.Pix[p], img.Pix[p+1], img.Pix[p+2], target)
		switch {
		case d < tol/2:
			alpha[i] = 0
		case d < tol:
			alpha[i] = (d - tol/2) / (tol / 2)
		default:
			alpha[i] = 1
		}
	}

	flooded := floodFromBorder(alpha, w, h)

	out := img.Clone()
	for i := 0; i < w*h; i++ {
		p := i * 4
		if flooded[i] {
			out.Pix[p] = 255
			out.Pix[p+1] = 255
			out.Pix[p+2] = 255
			out.Pix[p+3] = 0
		} else {
			out.Pix[p+3] = 255
		}
	}
	return out
}

// estimateBackground samples a fixed constellation of border-region points:
// the four corners, the four edge midpoints, and quarter-points along the
// top and both side edges, each averaged over a small surrounding patch.
func estimateBackground(img *pixel.Buffer) [3]byte {
	w, h := img.Width, img.Height
	points := [][2]int{
		{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1},
		{w / 2, 0}, {w / 2, h - 1}, {0, h / 2}, {w - 1, h / 2},
		{w / 4, 0}, {3 * w / 4, 0},
		{0, h / 4}, {0, 3 * h / 4},
		{w - 1, h / 4}, {w - 1, 3 * h / 4},
	}

	const patch = 2
	var sumR, sumG, sumB, n float64
	for _, pt := range points {
		for dy := -patch; dy <= patch; dy++ {
			for dx := -patch; dx <= patch; dx++ {
				x, y := pt[0]+dx, pt[1]+dy
				if x < 0 || x >= w || y < 0 || y >= h {
					continue
				}
				cr, cg, cb, _ := img.At(x, y)
				sumR += float64(cr)
				sumG += float64(cg)
				sumB += float64(cb)
				n++
			}
		}
	}
	if n == 0 {
		return [3]byte{255, 255, 255}
	}
	return [3]byte{byte(sumR / n), byte(sumG / n), byte(sumB / n)}
}

func colorDistance(r, g, b byte, target [3]byte) float64 {
	dr := float64(r) - float64(target[0])
	dg := float64(g) - float64(target[1])
	db := float64(b) - float64(target[2])
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// floodFromBorder runs a 4-connected flood fill seeded from every border
// pixel whose ramped alpha is below floodSeedAlpha, spreading through pixels
// below floodPassAlpha. Returns the reached set.
func floodFromBorder(alpha []float64, w, h int) []bool {
	flooded := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))

	seed := func(x, y int) {
		i := y*w + x
		if !flooded[i] && alpha[i] < floodSeedAlpha {
			flooded[i] = true
			queue = append(queue, i)
		}
	}
	for x := 0; x < w; x++ {
		seed(x, 0)
		seed(x, h-1)
	}
	for y := 0; y < h; y++ {
		seed(0, y)
		seed(w-1, y)
	}

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x, y := i%w, i/w

		visit := func(nx, ny int) {
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				return
			}
			ni := ny*w + nx
			if !flooded[ni] && alpha[ni] < floodPassAlpha {
				flooded[ni] = true
				queue = append(queue, ni)
			}
		}
		visit(x-1, y)
		visit(x+1, y)
		visit(x, y-1)
		visit(x, y+1)
	}
	return flooded
}
