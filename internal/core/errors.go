package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned when an external service is unreachable or answers non-2xx
	ErrTransport = errors.New("external service unavailable")

	// ErrValidation is returned when generated content is missing fields or out of bounds
	ErrValidation = errors.New("content validation failed")

	// ErrDuplicate is returned when a subject already has a published article
	ErrDuplicate = errors.New("subject already published")

	// ErrStorage is returned when a persistence write or read fails
	ErrStorage = errors.New("storage failure")

	// ErrGeneration is returned when the text-generation service produces nothing usable
	ErrGeneration = errors.New("generation failed")

	// ErrImage is returned when no featured image could be produced
	ErrImage = errors.New("image unavailable")

	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrLocked is returned when another cycle holds the run lock
	ErrLocked = errors.New("another cycle is in progress")
)

// Skip reasons recorded on topics and in cycle reports.
const (
	ReasonDuplicate        = "duplicate"
	ReasonGenerationFailed = "generation_failed"
	ReasonValidationFailed = "validation_failed"
	ReasonStorageFailed    = "storage_failed"
	ReasonClaimFailed      = "claim_failed"
	ReasonLocked           = "locked"
	ReasonCancelled        = "cancelled"
)

// StageError records which pipeline stage failed and the skip reason it maps to.
type StageError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Reason, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the reason derived from it.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Reason: ReasonFor(err), Err: err}
}

// ReasonFor maps an error to its stable skip reason.
func ReasonFor(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason
	}
	switch {
	case errors.Is(err, ErrDuplicate):
		return ReasonDuplicate
	case errors.Is(err, ErrValidation):
		return ReasonValidationFailed
	case errors.Is(err, ErrStorage):
		return ReasonStorageFailed
	case errors.Is(err, ErrLocked):
		return ReasonLocked
	default:
		return ReasonGenerationFailed
	}
}
