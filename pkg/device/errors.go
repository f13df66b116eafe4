package device

import (
	"errors"
	"fmt"
)

var (
	// ErrQueryFailed marks a failed telemetry or state read. Usually transient.
	ErrQueryFailed = errors.New("device query failed")
	// ErrMutationFailed marks a failed write. Device state can no longer be
	// trusted after one.
	ErrMutationFailed = errors.New("device mutation failed")
	// ErrUnsupported is returned by backends for capabilities they lack.
	ErrUnsupported = errors.New("operation not supported by device")
	// ErrNoSuchBackend is returned by Open for unknown backend names.
	ErrNoSuchBackend = errors.New("no such device backend")
)

// OpError records the failed operation together with its error class.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// QueryError wraps err as an ErrQueryFailed for operation op.
func QueryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Kind: ErrQueryFailed, Err: err}
}

// MutationError wraps err as an ErrMutationFailed for operation op.
func MutationError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Kind: ErrMutationFailed, Err: err}
}
