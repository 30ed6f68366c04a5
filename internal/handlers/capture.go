package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/portraitlab/capture-pipeline/internal/pipeline"
	"github.com/portraitlab/capture-pipeline/pkg/capture"
)

// CaptureHandler exposes the pipeline over HTTP.
type CaptureHandler struct {
	pipeline *pipeline.Pipeline
	log      *logrus.Entry
}

// NewCaptureHandler creates a capture handler.
func NewCaptureHandler(p *pipeline.Pipeline, log *logrus.Entry) *CaptureHandler {
	if log == nil {
		log = logrus.WithField("component", "handlers")
	}
	return &CaptureHandler{pipeline: p, log: log}
}

// HandleCapture handles POST /v1/capture - runs a capture and returns the
// portrait as base64 PNG.
func (h *CaptureHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req capture.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.Capture(r.Context(), req)
	if err != nil {
		h.log.WithError(err).WithField("fingerprint", req.SubjectFingerprint).Warn("capture failed")
		http.Error(w, fmt.Sprintf("Capture failed: %v", err), statusFor(err))
		return
	}

	resp := capture.Response{
		RunID:       result.RunID,
		Attempts:    result.Attempts,
		CacheHit:    result.CacheHit,
		ImageBase64: result.Base64PNG(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// HandleClearCache handles POST /v1/cache/clear.
func (h *CaptureHandler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.pipeline.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// HandleClassifier handles GET /v1/classifier - reports AI segmentation
// availability.
func (h *CaptureHandler) HandleClassifier(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"available": h.pipeline.ClassifierAvailable(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSubjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrQueueSaturated):
		return http.StatusTooManyRequests
	case errors.Is(err, pipeline.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
