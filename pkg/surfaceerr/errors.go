// Package surfaceerr defines the error taxonomy shared by the control
// surface packages. Callers match with errors.Is; producers wrap these with
// fmt.Errorf("...: %w", ...) to add context.
package surfaceerr

import "errors"

var (
	// ErrBadParameter reports an invalid enum, index or configuration value
	// passed across a package boundary.
	ErrBadParameter = errors.New("bad parameter")

	// ErrQueueFull is the back-pressure signal of a bounded event channel.
	// The event was dropped.
	ErrQueueFull = errors.New("queue full")

	// ErrDuplicate reports a second registration where uniqueness is
	// required.
	ErrDuplicate = errors.New("duplicate")

	// ErrNullReference reports a missing collaborator, e.g. a nil context or
	// an unregistered channel.
	ErrNullReference = errors.New("null reference")

	// ErrUnsupported reports an operation the target does not support.
	ErrUnsupported = errors.New("unsupported")
)
