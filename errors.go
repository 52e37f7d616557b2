package flint

import (
	"github.com/cockroachdb/errors"
)

// Error categories. Every error returned by this package matches at most one
// of ErrInvalidArgument and ErrBackend under errors.Is.
var (
	// ErrInvalidArgument marks precondition violations: nil references,
	// zero sizes or extents, undeclared bindings, mismatched objects.
	ErrInvalidArgument = errors.New("flint: invalid argument")

	// ErrBackend marks failures reported by the GPU HAL. The HAL error is
	// kept as the cause, so errors.Is(err, hal.ErrDeviceLost) still works.
	ErrBackend = errors.New("flint: backend failure")

	// ErrTerminated is returned when an operation needs an object that has
	// already been terminated.
	ErrTerminated = errors.New("flint: object terminated")

	// ErrDependentsAlive is returned by Device.Terminate while objects
	// created from the device have not been terminated.
	ErrDependentsAlive = errors.New("flint: device has live dependents")
)

// invalidArgument builds an error marked with ErrInvalidArgument.
func invalidArgument(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// backendError wraps a HAL error and marks it with ErrBackend.
// A nil err yields a new backend error carrying only the message.
func backendError(err error, format string, args ...any) error {
	if err == nil {
		return errors.Mark(errors.Newf(format, args...), ErrBackend)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrBackend)
}

// terminatedError reports use of a terminated object.
func terminatedError(kind string) error {
	return errors.Wrapf(ErrTerminated, "flint: %s", kind)
}
