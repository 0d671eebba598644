package webhook

import (
	"errors"
	"fmt"
)

// ErrNotDispatchable is returned when a row is not in a state the dispatcher
// may claim.
var ErrNotDispatchable = errors.New("webhook log is not dispatchable")

// ErrInvalidEvent is returned by the gate for events missing required fields.
var ErrInvalidEvent = errors.New("invalid webhook event")

// PermanentError marks a processing failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Permanent() bool {
	return true
}

// Permanent wraps err so IsPermanent reports true. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Permanentf is Permanent(fmt.Errorf(format, args...)).
func Permanentf(format string, args ...interface{}) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether any error in err's chain classifies itself as
// permanent. Everything else is treated as transient.
func IsPermanent(err error) bool {
	var p permanent
	if errors.As(err, &p) {
		return p.Permanent()
	}
	return false
}
