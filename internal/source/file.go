package source

import (
	"context"
	"fmt"
	"os"

	"github.com/portraitlab/capture-pipeline/internal/pipeline"
	"github.com/portraitlab/capture-pipeline/internal/pixel"
)

// FileSource serves a decoded image file as the raw capture. Used by the
// CLI to run the transform pipeline against arbitrary local images.
type FileSource struct {
	img *pixel.Buffer
}

// NewFileSource loads and decodes the image at path.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := pixel.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &FileSource{img: img}, nil
}

// AcquireTemporarySubject has nothing to strip from a static image; it
// hands back the source unchanged.
func (s *FileSource) AcquireTemporarySubject(ctx context.Context, sourceID string, opts pipeline.TemporarySubjectOptions) (string, error) {
	return sourceID, nil
}

// ReleaseTemporarySubject is a no-op for file-backed subjects.
func (s *FileSource) ReleaseTemporarySubject(tempID string) {}

// CaptureRawImage returns a copy of the decoded image.
func (s *FileSource) CaptureRawImage(ctx context.Context, subjectID string) (*pixel.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.img.Clone(), nil
}
