package segment

import "github.com/portraitlab/capture-pipeline/internal/pixel"

// smoothEdges softens hard binary segmentation edges into a gradient.
// A boundary pixel is an opaque pixel with at least one fully transparent
// 4-neighbor; its alpha is replaced with the average alpha over a
// (2*radius+1)^2 neighborhood clamped to the image.
//
// Unlike the other stages this mutates img in place. Replacement alphas are
// computed against a snapshot of the alpha channel so earlier writes cannot
// skew later averages.
func smoothEdges(img *pixel.Buffer, radius int) {
	if radius < 1 {
		return
	}
	w, h := img.Width, img.Height

	orig := make([]byte, w*h)
	for i := 0; i < w*h; i++ {
		orig[i] = img.Pix[i*4+3]
	}

	transparentAt := func(x, y int) bool {
		if x < 0 || x >= w || y < 0 || y >= h {
			return false
		}
		return orig[y*w+x] == 0
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if orig[y*w+x] == 0 {
				continue
			}
			if !transparentAt(x-1, y) && !transparentAt(x+1, y) &&
				!transparentAt(x, y-1) && !transparentAt(x, y+1) {
				continue
			}

			var sum, n int
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					sum += int(orig[ny*w+nx])
					n++
				}
			}
			img.Pix[img.Offset(x, y)+3] = byte(sum / n)
		}
	}
}
