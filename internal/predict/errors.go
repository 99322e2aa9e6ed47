package predict

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call to a collaborator endpoint.
type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindMalformed Kind = "malformed"
)

var (
	ErrTransport = errors.New("transport failure")
	ErrStatus    = errors.New("unexpected status")
	ErrMalformed = errors.New("malformed response")
)

// Error is returned by every Client call that fails.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrStatus:
		return e.Kind == KindStatus
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// KindOf returns the Kind of err, or "unknown" when err did not come from a Client.
func KindOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return "unknown"
}

// IsTransient reports whether err is a transport or status failure. Malformed
// payloads are skipped the same way but are not expected to heal by themselves.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrStatus)
}
