package segment

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/portraitlab/capture-pipeline/internal/pixel"
)

// Classifier produces a per-pixel person/background probability mask for an
// image. Implementations wrap an external segmentation model; the remover
// treats them as a black box that may be unavailable or fail at any time.
type Classifier interface {
	// ClassifyMask returns one probability per pixel, row-major, aligned to
	// the image dimensions. 1.0 means "person".
	ClassifyMask(ctx context.Context, img *pixel.Buffer) ([]float32, error)

	// Available reports whether the model can currently serve requests.
	Available() bool
}

// Config holds background removal tuning.
type Config struct {
	// Threshold is the person-probability cutoff for classifier masks.
	Threshold float64

	// SmoothEdges enables the boundary alpha-averaging pass.
	SmoothEdges  bool
	SmoothRadius int

	// FallbackOnFail switches to the color heuristic when the classifier
	// is unavailable or fails. When false the image passes through untouched.
	FallbackOnFail bool

	// Tolerance is the color-heuristic RGB distance tolerance.
	Tolerance float64

	// TargetColor pins the background color instead of sampling the borders.
	TargetColor *[3]byte
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		c.Threshold = 0.5
	}
	if c.SmoothRadius <= 0 {
		c.SmoothRadius = 1
	}
	if c.Tolerance <= 0 {
		c.Tolerance = 60
	}
}

// Remover makes image backgrounds transparent, preferring a classifier mask
// and falling back to a color-distance heuristic.
type Remover struct {
	classifier Classifier
	cfg        Config
	log        *logrus.Entry
}

// New creates a remover. classifier may be nil, in which case only the
// color heuristic is used.
func New(classifier Classifier, cfg Config, log *logrus.Entry) *Remover {
	cfg.WithDefaults()
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Remover{classifier: classifier, cfg: cfg, log: log}
}

// ClassifierAvailable reports whether the classifier path can be used.
func (r *Remover) ClassifierAvailable() bool {
	return r.classifier != nil && r.classifier.Available()
}

// Remove returns a new buffer with the background made transparent.
// The boolean reports whether any segmentation was actually performed; it is
// false only when a configured classifier failed or is unavailable while
// fallback is disabled, in which case the returned buffer is the untouched
// input. A nil classifier always uses the color heuristic.
func (r *Remover) Remove(ctx context.Context, img *pixel.Buffer) (*pixel.Buffer, bool, error) {
	if img.Empty() {
		return nil, false, fmt.Errorf("empty input image")
	}

	if r.classifier != nil {
		if !r.classifier.Available() {
			if !r.cfg.FallbackOnFail {
				r.log.Warn("classifier unavailable, fallback disabled, returning image untouched")
				return img, false, nil
			}
			r.log.Info("classifier unavailable, falling back to color heuristic")
		} else {
			mask, err := r.classifier.ClassifyMask(ctx, img)
			if err == nil && len(mask) != img.Width*img.Height {
				err = fmt.Errorf("mask length %d does not match %dx%d image", len(mask), img.Width, img.Height)
			}
			if err == nil {
				out := r.applyMask(img, mask)
				r.finish(out)
				return out, true, nil
			}
			if !r.cfg.FallbackOnFail {
				r.log.WithError(err).Warn("classifier failed, fallback disabled, returning image untouched")
				return img, false, nil
			}
			r.log.WithError(err).Info("classifier failed, falling back to color heuristic")
		}
	}

	out := r.removeByColor(img)
	r.finish(out)
	return out, true, nil
}

// applyMask keeps person pixels opaque and turns everything else into
// fully transparent white.
func (r *Remover) applyMask(img *pixel.Buffer, mask []float32) *pixel.Buffer {
	out := img.Clone()
	for i := 0; i < len(mask); i++ {
		p := i * 4
		if float64(mask[i]) >= r.cfg.Threshold {
			out.Pix[p+3] = 255
		} else {
			out.Pix[p] = 255
			out.Pix[p+1] = 255
			out.Pix[p+2] = 255
			out.Pix[p+3] = 0
		}
	}
	return out
}

func (r *Remover) finish(out *pixel.Buffer) {
	if r.cfg.SmoothEdges {
		smoothEdges(out, r.cfg.SmoothRadius)
	}
}
