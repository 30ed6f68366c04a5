package pipeline

import (
	"context"
	"errors"
)

var (
	// ErrSubjectNotFound is returned when the capture subject does not exist
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrTemporarySubject is returned when acquiring the stripped clone fails
	ErrTemporarySubject = errors.New("temporary subject acquisition failed")

	// ErrCaptureFailed is returned when the raw capture fails
	ErrCaptureFailed = errors.New("raw capture failed")

	// ErrTransform is returned when a transform stage fails
	ErrTransform = errors.New("image transform failed")

	// ErrTimeout is returned when a stage exceeds its deadline
	ErrTimeout = errors.New("operation timed out")

	// ErrQueueSaturated is returned by the non-blocking admission variant
	ErrQueueSaturated = errors.New("admission queue saturated")
)

// retryable reports whether an attempt failure is worth retrying.
// Transform failures are not: they degrade inside the stage instead.
func retryable(err error) bool {
	return errors.Is(err, ErrTemporarySubject) ||
		errors.Is(err, ErrCaptureFailed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
