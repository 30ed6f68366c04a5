package pipeline

import (
	"time"

	"github.com/portraitlab/capture-pipeline/internal/cache"
	"github.com/portraitlab/capture-pipeline/internal/queue"
	"github.com/portraitlab/capture-pipeline/internal/segment"
	"github.com/portraitlab/capture-pipeline/internal/upscale"
)

// Config holds capture pipeline configuration
type Config struct {
	Cache cache.Config
	Queue queue.Config

	// RetryCount is the number of retries after the first attempt;
	// maxAttempts = RetryCount + 1.
	RetryCount int

	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration

	// Timeout bounds every suspending external call (clone acquisition,
	// raw capture, classifier inference).
	Timeout time.Duration

	// SafetyTimeout is the hard upper bound on a temporary subject's
	// lifetime, enforced independently of the main control flow.
	SafetyTimeout time.Duration

	// SegmentationEnabled turns the background removal stage on.
	SegmentationEnabled bool
	Segmentation        segment.Config

	Upscale upscale.Config
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	c.Cache.WithDefaults()
	c.Queue.WithDefaults()
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.SafetyTimeout <= 0 {
		c.SafetyTimeout = 30 * time.Second
	}
	c.Segmentation.WithDefaults()
	c.Upscale.WithDefaults()
}
