package process

import (
	"errors"
	"fmt"
)

// MissingBackendError means an ASR backend could not be reached at all: the
// executable is not installed or the service refused the connection. It is a
// configuration failure and retrying does not help.
type MissingBackendError struct {
	Backend string
	Cause   error
}

func (e *MissingBackendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("asr backend %q unavailable: %v", e.Backend, e.Cause)
	}
	return fmt.Sprintf("asr backend %q unavailable", e.Backend)
}

func (e *MissingBackendError) Unwrap() error { return e.Cause }

// IsMissingBackend reports whether err carries a *MissingBackendError.
func IsMissingBackend(err error) bool {
	var mb *MissingBackendError
	return errors.As(err, &mb)
}
