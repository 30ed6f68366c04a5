package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/portraitlab/capture-pipeline/internal/cache"
	"github.com/portraitlab/capture-pipeline/internal/metrics"
	"github.com/portraitlab/capture-pipeline/internal/pixel"
	"github.com/portraitlab/capture-pipeline/internal/queue"
	"github.com/portraitlab/capture-pipeline/internal/segment"
	"github.com/portraitlab/capture-pipeline/internal/upscale"
	"github.com/portraitlab/capture-pipeline/pkg/capture"
)

// Pipeline coordinates portrait captures: cache lookup, bounded admission,
// the retry loop around the external capture, the transform stages, and
// result delivery. Construct once and share; the cache and queue are the
// only mutable state and serialize their own access.
type Pipeline struct {
	cfg      Config
	source   SubjectSource
	remover  *segment.Remover
	upscaler *upscale.Upscaler
	cache    *cache.Cache
	queue    *queue.Queue

	sink      ResultSink
	notifiers []Notifier
	metrics   *metrics.Metrics
	log       *logrus.Entry
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithSink attaches a persistence sink for finished portraits.
func WithSink(s ResultSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithNotifier attaches a fire-and-forget result notifier. May be given
// multiple times; every notifier receives every event.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifiers = append(p.notifiers, n) }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(log *logrus.Entry) Option {
	return func(p *Pipeline) { p.log = log }
}

// New creates a capture pipeline. classifier may be nil; the background
// remover then always uses the color heuristic.
func New(source SubjectSource, classifier segment.Classifier, cfg Config, opts ...Option) *Pipeline {
	cfg.WithDefaults()
	p := &Pipeline{
		cfg:    cfg,
		source: source,
		cache:  cache.New(cfg.Cache),
		queue:  queue.New(cfg.Queue),
		log:    logrus.WithField("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.remover = segment.New(classifier, cfg.Segmentation, p.log)
	p.upscaler = upscale.New(cfg.Upscale)
	return p
}

// Queue exposes the admission queue for instrumentation.
func (p *Pipeline) Queue() *queue.Queue {
	return p.queue
}

// ClearCache drops all memoized results.
func (p *Pipeline) ClearCache() {
	p.cache.Clear()
	p.metrics.SetCacheSize(0)
}

// ClassifierAvailable reports whether AI segmentation can be used.
func (p *Pipeline) ClassifierAvailable() bool {
	return p.remover.ClassifierAvailable()
}

// Capture runs one portrait capture end to end. The cache fast path is the
// only path that bypasses admission control; on a miss the admission slot is
// held across the whole retry loop so concurrency is bounded per logical
// request, not per attempt.
func (p *Pipeline) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := p.log.WithFields(logrus.Fields{
		"run_id":      runID,
		"fingerprint": req.SubjectFingerprint,
	})
	start := time.Now()
	key := req.CacheKey()

	if v, ok := p.cache.Get(key); ok {
		log.Debug("cache hit")
		p.metrics.ObserveCapture(metrics.OutcomeCacheHit, time.Since(start), 0)
		res := &capture.Result{PNG: v, RunID: runID, CacheHit: true}
		p.notify(Event{RunID: runID, Fingerprint: req.SubjectFingerprint, Success: true, CacheHit: true, Duration: time.Since(start)})
		return res, nil
	}

	if err := p.queue.Acquire(ctx); err != nil {
		return nil, err
	}
	slotHeld := true
	release := func() {
		if slotHeld {
			slotHeld = false
			p.queue.Release()
		}
	}
	defer release()

	maxAttempts := p.cfg.RetryCount + 1
	var img *pixel.Buffer
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		img, lastErr = p.attempt(ctx, req, log.WithField("attempt", attempt))
		if lastErr == nil {
			break
		}
		log.WithError(lastErr).WithField("attempt", attempt).Warn("capture attempt failed")
		if !retryable(lastErr) || attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(p.cfg.RetryDelay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxAttempts
		}
	}

	if lastErr != nil {
		p.metrics.ObserveCapture(metrics.OutcomeFailure, time.Since(start), attempts)
		p.notify(Event{RunID: runID, Fingerprint: req.SubjectFingerprint, Attempts: attempts, Duration: time.Since(start), Error: lastErr.Error()})
		return nil, fmt.Errorf("capture failed after %d attempts: %w", attempts, lastErr)
	}

	png, err := img.EncodePNG()
	if err != nil {
		p.metrics.ObserveCapture(metrics.OutcomeFailure, time.Since(start), attempts)
		return nil, fmt.Errorf("%w: %v", ErrTransform, err)
	}

	p.cache.Put(key, png)
	p.metrics.SetCacheSize(p.cache.Len())
	release()

	path := p.persist(ctx, req, runID, png, log)
	p.metrics.ObserveCapture(metrics.OutcomeSuccess, time.Since(start), attempts)
	p.notify(Event{RunID: runID, Fingerprint: req.SubjectFingerprint, Success: true, Attempts: attempts, Duration: time.Since(start), Path: path})

	log.WithFields(logrus.Fields{
		"attempts":    attempts,
		"duration_ms": time.Since(start).Milliseconds(),
		"bytes":       len(png),
	}).Info("capture completed")

	return &capture.Result{PNG: png, RunID: runID, Attempts: attempts}, nil
}

// attempt performs one full capture attempt: optional clone acquisition,
// raw capture, then the transform stages. Any per-attempt external resource
// is released before returning, on success and failure alike.
func (p *Pipeline) attempt(ctx context.Context, req capture.Request, log *logrus.Entry) (*pixel.Buffer, error) {
	subjectID := req.SourceID
	if subjectID == "" {
		subjectID = req.SubjectFingerprint
	}

	if req.NeedsTemporarySubject() {
		actx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		tempID, err := p.source.AcquireTemporarySubject(actx, subjectID, TemporarySubjectOptions{
			RemoveCosmetics: req.RemoveCosmetics,
			RemoveMask:      req.RemoveMask,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemporarySubject, err)
		}
		guard := newReleaseGuard(func() {
			p.source.ReleaseTemporarySubject(tempID)
		}, p.cfg.SafetyTimeout)
		defer guard.Release()
		subjectID = tempID
		log.WithField("temp_id", tempID).Debug("temporary subject acquired")
	}

	raw, err := p.captureRaw(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	return p.transform(ctx, req, raw, log)
}

// captureRaw races the collaborator call against its deadline so a capture
// whose completion callback never fires cannot hang the run.
func (p *Pipeline) captureRaw(ctx context.Context, subjectID string) (*pixel.Buffer, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	type result struct {
		img *pixel.Buffer
		err error
	}
	ch := make(chan result, 1)
	go func() {
		img, err := p.source.CaptureRawImage(cctx, subjectID)
		ch <- result{img, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: raw capture: %v", ErrTimeout, r.err)
			}
			return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, r.err)
		}
		if r.img.Empty() {
			return nil, fmt.Errorf("%w: empty image", ErrCaptureFailed)
		}
		return r.img, nil
	case <-cctx.Done():
		return nil, fmt.Errorf("%w: raw capture: %v", ErrTimeout, cctx.Err())
	}
}

// transform runs segmentation before upscaling: segmentation quality at
// native resolution beats segmenting an upscaled image.
func (p *Pipeline) transform(ctx context.Context, req capture.Request, img *pixel.Buffer, log *logrus.Entry) (*pixel.Buffer, error) {
	if req.Transparent && p.cfg.SegmentationEnabled {
		sctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		out, performed, err := p.remover.Remove(sctx, img)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: segmentation: %v", ErrTransform, err)
		}
		if performed {
			img = out
		} else {
			log.Debug("segmentation skipped, image passed through")
		}
	}

	if req.Upscale {
		img = p.upscaler.Process(img, req.UpscaleFactor)
	}

	if img.Empty() {
		return nil, fmt.Errorf("%w: empty result", ErrTransform)
	}
	return img, nil
}

func (p *Pipeline) persist(ctx context.Context, req capture.Request, runID string, png []byte, log *logrus.Entry) string {
	if p.sink == nil {
		return ""
	}
	name := fmt.Sprintf("portrait_%s_%s.png", req.SubjectFingerprint, runID)
	path, err := p.sink.PersistResult(ctx, png, name)
	if err != nil {
		log.WithError(err).Warn("failed to persist result")
		return ""
	}
	return path
}

func (p *Pipeline) notify(ev Event) {
	for _, n := range p.notifiers {
		n.NotifyResult(ev)
	}
}
