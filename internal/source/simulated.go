package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/portraitlab/capture-pipeline/internal/pipeline"
	"github.com/portraitlab/capture-pipeline/internal/pixel"
)

// SimulatedSource renders deterministic synthetic portraits: a flat
// backdrop with a centered figure whose color derives from the subject ID.
// It stands in for the game host in the worker's demo mode and in local
// development.
type SimulatedSource struct {
	// Latency is the simulated native-call duration per operation.
	Latency time.Duration

	// Width and Height of produced captures.
	Width  int
	Height int

	mu    sync.Mutex
	seq   int
	live  map[string]bool
	freed int
}

// NewSimulatedSource creates a simulated source with 256x256 output.
func NewSimulatedSource(latency time.Duration) *SimulatedSource {
	return &SimulatedSource{
		Latency: latency,
		Width:   256,
		Height:  256,
		live:    make(map[string]bool),
	}
}

func (s *SimulatedSource) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AcquireTemporarySubject simulates cloning the subject with items stripped.
func (s *SimulatedSource) AcquireTemporarySubject(ctx context.Context, sourceID string, opts pipeline.TemporarySubjectOptions) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	tempID := fmt.Sprintf("%s-clone-%d", sourceID, s.seq)
	s.live[tempID] = true
	return tempID, nil
}

// ReleaseTemporarySubject destroys a clone. Idempotent.
func (s *SimulatedSource) ReleaseTemporarySubject(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[tempID] {
		delete(s.live, tempID)
		s.freed++
	}
}

// LiveClones returns the number of outstanding temporary subjects.
func (s *SimulatedSource) LiveClones() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// CaptureRawImage renders the synthetic portrait for a subject.
func (s *SimulatedSource) CaptureRawImage(ctx context.Context, subjectID string) (*pixel.Buffer, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	h := fnv.New32a()
	h.Write([]byte(subjectID))
	seed := h.Sum32()
	figR := byte(64 + seed%128)
	figG := byte(64 + (seed>>8)%128)
	figB := byte(64 + (seed>>16)%128)

	img, err := pixel.New(s.Width, s.Height)
	if err != nil {
		return nil, err
	}

	// beige backdrop, torso-and-head silhouette
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.Set(x, y, 222, 214, 196, 255)
		}
	}
	cx, cy := s.Width/2, s.Height/3
	headR := s.Height / 6
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			dx, dy := x-cx, y-cy
			inHead := dx*dx+dy*dy <= headR*headR
			inTorso := y > cy+headR/2 && y < s.Height-s.Height/8 &&
				x > cx-s.Width/4 && x < cx+s.Width/4
			if inHead || inTorso {
				img.Set(x, y, figR, figG, figB, 255)
			}
		}
	}
	return img, nil
}
