package capture

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"minimal", Request{SubjectFingerprint: "fp"}, false},
		{"missing fingerprint", Request{SourceID: "player"}, true},
		{"upscale 2x", Request{SubjectFingerprint: "fp", Upscale: true, UpscaleFactor: 2}, false},
		{"upscale 4x", Request{SubjectFingerprint: "fp", Upscale: true, UpscaleFactor: 4}, false},
		{"upscale without factor", Request{SubjectFingerprint: "fp", Upscale: true}, true},
		{"upscale bad factor", Request{SubjectFingerprint: "fp", Upscale: true, UpscaleFactor: 3}, true},
		{"factor ignored when upscale off", Request{SubjectFingerprint: "fp", UpscaleFactor: 7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error %v does not wrap ErrInvalidRequest", err)
			}
		})
	}
}

func TestCacheKeyDistinctPerFlag(t *testing.T) {
	base := Request{SubjectFingerprint: "fp"}

	variants := []Request{
		{SubjectFingerprint: "fp", Transparent: true},
		{SubjectFingerprint: "fp", RemoveCosmetics: true},
		{SubjectFingerprint: "fp", RemoveMask: true},
		{SubjectFingerprint: "fp", Upscale: true, UpscaleFactor: 2},
		{SubjectFingerprint: "fp", Upscale: true, UpscaleFactor: 4},
		{SubjectFingerprint: "other"},
	}

	seen := map[string]bool{base.CacheKey(): true}
	for i, v := range variants {
		key := v.CacheKey()
		if seen[key] {
			t.Errorf("variant %d collides with an earlier key: %q", i, key)
		}
		seen[key] = true
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := Request{SubjectFingerprint: "fp", Transparent: true, Upscale: true, UpscaleFactor: 2}
	b := Request{SubjectFingerprint: "fp", Transparent: true, Upscale: true, UpscaleFactor: 2}
	if a.CacheKey() != b.CacheKey() {
		t.Errorf("identical requests produced different keys: %q vs %q", a.CacheKey(), b.CacheKey())
	}
}

func TestCacheKeyIgnoresStaleFactor(t *testing.T) {
	// With upscaling off, the factor field must not leak into the key.
	a := Request{SubjectFingerprint: "fp", UpscaleFactor: 2}
	b := Request{SubjectFingerprint: "fp", UpscaleFactor: 4}
	if a.CacheKey() != b.CacheKey() {
		t.Error("factor affected key while upscale is disabled")
	}
}

func TestNeedsTemporarySubject(t *testing.T) {
	if (&Request{SubjectFingerprint: "fp"}).NeedsTemporarySubject() {
		t.Error("plain capture should not need a temporary subject")
	}
	if !(&Request{SubjectFingerprint: "fp", RemoveCosmetics: true}).NeedsTemporarySubject() {
		t.Error("cosmetics removal requires a temporary subject")
	}
	if !(&Request{SubjectFingerprint: "fp", RemoveMask: true}).NeedsTemporarySubject() {
		t.Error("mask removal requires a temporary subject")
	}
}

func TestBase64PNG(t *testing.T) {
	r := Result{PNG: []byte{0x89, 'P', 'N', 'G'}}
	if got := r.Base64PNG(); got != "iVBORw==" {
		t.Errorf("Base64PNG() = %q, want %q", got, "iVBORw==")
	}
}
