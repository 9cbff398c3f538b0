package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"interview-stt-go/internal/process"
	"interview-stt-go/internal/store"
)

// ErrStaleRun is returned when a newer run took over the interview before
// this run could persist its result.
var ErrStaleRun = store.ErrStaleRun

// ConsistencyError means the interview a task refers to does not exist.
type ConsistencyError struct {
	UserID      uuid.UUID
	InterviewID uuid.UUID
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("interview %s not found for user %s", e.InterviewID, e.UserID)
}

// TranscriptionError is a failed engine run. It is worth retrying.
type TranscriptionError struct {
	Engine string
	Reason string
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("%s transcription failed: %s", e.Engine, e.Reason)
}

// RunError carries the token of the run that produced Err, so the failure
// can later be recorded against that run only.
type RunError struct {
	RunToken string
	Err      error
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }

// IsFatal reports whether retrying the task cannot succeed.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConsistencyError
	return errors.As(err, &ce) || process.IsMissingBackend(err) || errors.Is(err, ErrStaleRun)
}
