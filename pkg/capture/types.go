package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Upscale factors accepted in requests.
const (
	UpscaleFactor2 = 2
	UpscaleFactor4 = 4
)

// Request describes one portrait capture. It is immutable; the same subject
// appearance with the same options always produces the same cache key.
type Request struct {
	// SubjectFingerprint identifies the subject's visible appearance
	// variant. Derived by the caller from the game entity's visual state.
	SubjectFingerprint string `json:"subject_fingerprint"`

	// SourceID names the live game entity to capture from.
	SourceID string `json:"source_id"`

	Transparent     bool `json:"transparent"`
	RemoveCosmetics bool `json:"remove_cosmetics"`
	RemoveMask      bool `json:"remove_mask"`
	Upscale         bool `json:"upscale"`
	UpscaleFactor   int  `json:"upscale_factor,omitempty"`
}

// ErrInvalidRequest is returned for missing or malformed requests.
var ErrInvalidRequest = errors.New("invalid capture request")

// Validate checks required fields and option ranges.
func (r *Request) Validate() error {
	if r.SubjectFingerprint == "" {
		return fmt.Errorf("%w: subject_fingerprint is required", ErrInvalidRequest)
	}
	if r.Upscale && r.UpscaleFactor != UpscaleFactor2 && r.UpscaleFactor != UpscaleFactor4 {
		return fmt.Errorf("%w: upscale_factor must be %d or %d", ErrInvalidRequest, UpscaleFactor2, UpscaleFactor4)
	}
	return nil
}

// CacheKey builds the deterministic cache key: the fingerprint plus a
// canonical encoding of every option flag. Any differing flag yields a
// different key.
func (r *Request) CacheKey() string {
	factor := 0
	if r.Upscale {
		factor = r.UpscaleFactor
	}
	return fmt.Sprintf("%s|t=%t|c=%t|m=%t|u=%t|f=%d",
		r.SubjectFingerprint, r.Transparent, r.RemoveCosmetics, r.RemoveMask, r.Upscale, factor)
}

// NeedsTemporarySubject reports whether the capture requires a stripped
// clone of the subject instead of the live entity.
func (r *Request) NeedsTemporarySubject() bool {
	return r.RemoveCosmetics || r.RemoveMask
}

// Result is a finished capture.
type Result struct {
	// PNG is the encoded portrait.
	PNG []byte

	// RunID identifies the pipeline run that produced the result.
	RunID string

	// Attempts is the number of capture attempts used; 0 on a cache hit,
	// where no attempt reaches the collaborator.
	Attempts int

	// CacheHit reports whether the result came from the capture cache.
	CacheHit bool
}

// Base64PNG returns the portrait encoded for transport across a UI-surface
// or JSON boundary.
func (r *Result) Base64PNG() string {
	return base64.StdEncoding.EncodeToString(r.PNG)
}

// Response is the wire form of a finished capture.
type Response struct {
	RunID       string `json:"run_id"`
	Attempts    int    `json:"attempts"`
	CacheHit    bool   `json:"cache_hit"`
	ImageBase64 string `json:"image_base64"`
}
