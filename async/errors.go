package async

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// CompositionError wraps a failure that crossed a stage of the async
// machinery (a Then/Map/Recover step, a scheduled task). It carries no domain
// meaning of its own: everything handed to user code is unwrapped with Cause.
type CompositionError struct {
	Err error
}

// Error implements error.
func (e *CompositionError) Error() string {
	if e.Err == nil {
		return "async: composition failed"
	}
	return "async: " + e.Err.Error()
}

// Unwrap returns the wrapped failure.
func (e *CompositionError) Unwrap() error { return e.Err }

// compose wraps err for propagation through a stage. nil stays nil.
func compose(err error) error {
	if err == nil {
		return nil
	}
	return &CompositionError{Err: err}
}

// Cause strips every CompositionError layer from err and returns the innermost
// non-wrapper failure. Errors that are not composition wrappers are returned
// unchanged, including domain errors that themselves wrap other errors.
func Cause(err error) error {
	for {
		var ce *CompositionError
		if !errors.As(err, &ce) || err != error(ce) || ce.Err == nil {
			return err
		}
		err = ce.Err
	}
}

// PanicError reports a panic recovered inside a scheduled task.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("async: task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// recovered converts a recover() value into a PanicError.
func recovered(v any) error {
	return &PanicError{Value: v, Stack: debug.Stack()}
}
