package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/portraitlab/capture-pipeline/internal/cache"
	"github.com/portraitlab/capture-pipeline/internal/pixel"
	"github.com/portraitlab/capture-pipeline/internal/queue"
	"github.com/portraitlab/capture-pipeline/pkg/capture"
)

// fakeSource scripts collaborator behavior per test: the first failCaptures
// raw captures fail, and hang simulates a native call whose completion
// callback never fires.
type fakeSource struct {
	mu           sync.Mutex
	failCaptures int
	captureCalls int
	acquires     int
	releases     int
	hang         bool
	img          *pixel.Buffer
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	img, err := pixel.New(16, 16)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x >= 5 && x < 11 && y >= 5 && y < 11 {
				img.Set(x, y, 40, 40, 40, 255)
			} else {
				img.Set(x, y, 222, 214, 196, 255)
			}
		}
	}
	return &fakeSource{img: img}
}

func (s *fakeSource) AcquireTemporarySubject(ctx context.Context, sourceID string, opts TemporarySubjectOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquires++
	return fmt.Sprintf("temp-%d", s.acquires), nil
}

func (s *fakeSource) ReleaseTemporarySubject(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
}

func (s *fakeSource) CaptureRawImage(ctx context.Context, subjectID string) (*pixel.Buffer, error) {
	s.mu.Lock()
	s.captureCalls++
	fail := s.failCaptures > 0
	if fail {
		s.failCaptures--
	}
	hang := s.hang
	s.mu.Unlock()

	if hang {
		select {} // completion callback never fires
	}
	if fail {
		return nil, errors.New("render target busy")
	}
	return s.img.Clone(), nil
}

func (s *fakeSource) stats() (captures, acquires, releases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureCalls, s.acquires, s.releases
}

func testConfig() Config {
	return Config{
		Cache:         cache.Config{Enabled: false},
		Queue:         queue.Config{MaxConcurrent: 2},
		RetryCount:    2,
		RetryDelay:    5 * time.Millisecond,
		Timeout:       100 * time.Millisecond,
		SafetyTimeout: 300 * time.Millisecond,
	}
}

func basicRequest() capture.Request {
	return capture.Request{SubjectFingerprint: "subject-1"}
}

func TestCaptureSuccess(t *testing.T) {
	src := newFakeSource(t)
	p := New(src, nil, testConfig())

	result, err := p.Capture(context.Background(), basicRequest())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Attempts)
	}
	if result.CacheHit {
		t.Error("unexpected cache hit")
	}
	if len(result.PNG) == 0 {
		t.Error("empty PNG result")
	}
	if result.RunID == "" {
		t.Error("missing run ID")
	}
}

func TestInvalidRequest(t *testing.T) {
	p := New(newFakeSource(t), nil, testConfig())

	_, err := p.Capture(context.Background(), capture.Request{})
	if !errors.Is(err, capture.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}

	_, err = p.Capture(context.Background(), capture.Request{
		SubjectFingerprint: "x", Upscale: true, UpscaleFactor: 3,
	})
	if !errors.Is(err, capture.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest for factor 3", err)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	src := newFakeSource(t)
	src.failCaptures = 2

	cfg := testConfig()
	cfg.RetryCount = 2
	p := New(src, nil, cfg)

	result, err := p.Capture(context.Background(), basicRequest())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if captures, _, _ := src.stats(); captures != 3 {
		t.Errorf("capture calls = %d, want 3", captures)
	}
}

func TestRetryExhaustion(t *testing.T) {
	src := newFakeSource(t)
	src.failCaptures = 2

	cfg := testConfig()
	cfg.RetryCount = 1
	p := New(src, nil, cfg)

	_, err := p.Capture(context.Background(), basicRequest())
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("err = %v, want ErrCaptureFailed", err)
	}
	if captures, _, _ := src.stats(); captures != 2 {
		t.Errorf("capture calls = %d, want 2", captures)
	}
}

func TestCacheFastPath(t *testing.T) {
	src := newFakeSource(t)
	cfg := testConfig()
	cfg.Cache = cache.Config{Enabled: true, TTL: time.Minute, MaxSize: 10}
	p := New(src, nil, cfg)

	first, err := p.Capture(context.Background(), basicRequest())
	if err != nil {
		t.Fatalf("first capture: %v", err)
	}
	second, err := p.Capture(context.Background(), basicRequest())
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}

	if !second.CacheHit {
		t.Error("second capture should hit the cache")
	}
	if second.Attempts != 0 {
		t.Errorf("cache hit attempts = %d, want 0", second.Attempts)
	}
	if string(second.PNG) != string(first.PNG) {
		t.Error("cached result differs from original")
	}
	if captures, _, _ := src.stats(); captures != 1 {
		t.Errorf("capture calls = %d, want 1 (second call must not reach the collaborator)", captures)
	}

	// Any differing option flag is a different cache key.
	req := basicRequest()
	req.Transparent = true
	if _, err := p.Capture(context.Background(), req); err != nil {
		t.Fatalf("third capture: %v", err)
	}
	if captures, _, _ := src.stats(); captures != 2 {
		t.Errorf("capture calls = %d, want 2 after option change", captures)
	}
}

func TestCacheHitBypassesAdmission(t *testing.T) {
	src := newFakeSource(t)
	cfg := testConfig()
	cfg.Cache = cache.Config{Enabled: true, TTL: time.Minute, MaxSize: 10}
	cfg.Queue = queue.Config{MaxConcurrent: 1}
	p := New(src, nil, cfg)

	if _, err := p.Capture(context.Background(), basicRequest()); err != nil {
		t.Fatalf("warm-up capture: %v", err)
	}

	// Saturate the only admission slot; the cached request must still
	// complete without blocking.
	if err := p.Queue().Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer p.Queue().Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := p.Capture(ctx, basicRequest())
	if err != nil {
		t.Fatalf("cached capture blocked on admission: %v", err)
	}
	if !result.CacheHit {
		t.Error("expected cache hit")
	}
}

func TestClearCache(t *testing.T) {
	src := newFakeSource(t)
	cfg := testConfig()
	cfg.Cache = cache.Config{Enabled: true, TTL: time.Minute, MaxSize: 10}
	p := New(src, nil, cfg)

	p.Capture(context.Background(), basicRequest())
	p.ClearCache()
	p.Capture(context.Background(), basicRequest())

	if captures, _, _ := src.stats(); captures != 2 {
		t.Errorf("capture calls = %d, want 2 after cache clear", captures)
	}
}

func TestTemporarySubjectReleasedPerAttempt(t *testing.T) {
	src := newFakeSource(t)
	src.failCaptures = 3

	cfg := testConfig()
	cfg.RetryCount = 2
	p := New(src, nil, cfg)

	req := basicRequest()
	req.RemoveCosmetics = true

	_, err := p.Capture(context.Background(), req)
	if err == nil {
		t.Fatal("expected failure")
	}

	_, acquires, releases := src.stats()
	if acquires != 3 {
		t.Errorf("acquires = %d, want 3", acquires)
	}
	if releases != acquires {
		t.Errorf("releases = %d, want %d (every clone released)", releases, acquires)
	}
}

func TestHangingCaptureTimesOutAndReleases(t *testing.T) {
	src := newFakeSource(t)
	src.hang = true

	cfg := testConfig()
	cfg.RetryCount = 0
	cfg.Timeout = 50 * time.Millisecond
	cfg.SafetyTimeout = 150 * time.Millisecond
	p := New(src, nil, cfg)

	req := basicRequest()
	req.RemoveMask = true

	start := time.Now()
	_, err := p.Capture(context.Background(), req)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("pipeline hung for %v", elapsed)
	}

	if _, acquires, releases := src.stats(); releases != acquires {
		t.Errorf("releases = %d, want %d", releases, acquires)
	}

	// The safety timer must not double-release after the fact.
	time.Sleep(cfg.SafetyTimeout + 50*time.Millisecond)
	if _, acquires, releases := src.stats(); releases != acquires {
		t.Errorf("safety timer double-released: releases = %d, acquires = %d", releases, acquires)
	}

	// The admission slot was returned.
	if got := p.Queue().InFlight(); got != 0 {
		t.Errorf("in flight = %d, want 0", got)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) NotifyResult(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) all() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

func TestNotifierReceivesEvents(t *testing.T) {
	src := newFakeSource(t)
	notifier := &recordingNotifier{}
	p := New(src, nil, testConfig(), WithNotifier(notifier))

	if _, err := p.Capture(context.Background(), basicRequest()); err != nil {
		t.Fatal(err)
	}

	events := notifier.all()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if !ev.Success || ev.Attempts != 1 || ev.Fingerprint != "subject-1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestTransformStages(t *testing.T) {
	src := newFakeSource(t)
	cfg := testConfig()
	cfg.SegmentationEnabled = true
	p := New(src, nil, cfg)

	req := basicRequest()
	req.Transparent = true
	req.Upscale = true
	req.UpscaleFactor = capture.UpscaleFactor2

	result, err := p.Capture(context.Background(), req)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	out, err := pixel.Decode(result.PNG)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out.Width != 32 || out.Height != 32 {
		t.Fatalf("dimensions = %dx%d, want 32x32", out.Width, out.Height)
	}
	if _, _, _, a := out.At(0, 0); a != 0 {
		t.Errorf("background corner alpha = %d, want 0", a)
	}
	if _, _, _, a := out.At(16, 16); a != 255 {
		t.Errorf("figure center alpha = %d, want 255", a)
	}
}
