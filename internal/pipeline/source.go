package pipeline

import (
	"context"
	"time"

	"github.com/portraitlab/capture-pipeline/internal/pixel"
)

// TemporarySubjectOptions selects what to strip from the capture clone.
type TemporarySubjectOptions struct {
	RemoveCosmetics bool
	RemoveMask      bool
}

// SubjectSource is the game-host collaborator that owns subjects and
// produces raw captures. The pipeline never mutates game state itself; its
// only obligation toward temporary subjects is guaranteed release.
type SubjectSource interface {
	// AcquireTemporarySubject clones sourceID with the requested items
	// stripped and returns a handle to the clone.
	AcquireTemporarySubject(ctx context.Context, sourceID string, opts TemporarySubjectOptions) (string, error)

	// ReleaseTemporarySubject destroys a clone. Idempotent, safe to call
	// multiple times.
	ReleaseTemporarySubject(tempID string)

	// CaptureRawImage produces the raw portrait pixels for a subject.
	CaptureRawImage(ctx context.Context, subjectID string) (*pixel.Buffer, error)
}

// ResultSink persists finished portraits. Optional.
type ResultSink interface {
	PersistResult(ctx context.Context, data []byte, suggestedName string) (string, error)
}

// Event describes a finished pipeline run for observability sinks.
type Event struct {
	RunID       string        `json:"run_id"`
	Fingerprint string        `json:"fingerprint"`
	Success     bool          `json:"success"`
	CacheHit    bool          `json:"cache_hit"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration_ns"`
	Path        string        `json:"path,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Notifier receives fire-and-forget result events. Failures inside a
// notifier must never fail the capture. Optional.
type Notifier interface {
	NotifyResult(event Event)
}
