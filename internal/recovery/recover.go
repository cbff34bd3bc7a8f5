// Package recovery provides panic recovery middleware for the pipeline's
// user-supplied callbacks (Processor.Process, Processor.UpdateSchema).
// Ensures a panicking Processor doesn't crash the Runner — the panic is
// reclassified as an ordinary error per the run's error taxonomy.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError wraps a value recovered from a panic inside a guarded
// callback. Callers distinguish it from an ordinary returned error via
// IsPanic — the run's error taxonomy treats a recovered panic and a
// Processor-returned error differently (a panic is a "task
// panicked/killed" failure: logged and the record dropped with no DLQ
// entry; a returned error is a soft per-record failure routed to the DLQ).
type PanicError struct {
	Operation string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Operation, e.Value)
}

// IsPanic reports whether err originated from a panic recovered by
// RecoverToError or RecoverToValue, as opposed to an ordinary error the
// wrapped function returned.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// RecoverToError wraps a function call with panic recovery, converting any
// panic into a *PanicError.
//
// Example:
//
//	err := recovery.RecoverToError(logger, "UpdateSchema", func() error {
//	    return processor.someSetup()
//	})
func RecoverToError(logger *slog.Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()

			logger.Error("Panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(stack),
			)

			err = &PanicError{Operation: operation, Value: r, Stack: stack}
		}
	}()

	return fn()
}

// RecoverToValue wraps a function that returns a value and error.
// If the function panics, returns the zero value and a *PanicError.
//
// Example:
//
//	result, err := recovery.RecoverToValue(logger, "Process", func() (*record.Value, error) {
//	    return processor.Process(ctx, rec)
//	})
func RecoverToValue[T any](logger *slog.Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()

			logger.Error("Panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(stack),
			)

			var zero T
			result = zero
			err = &PanicError{Operation: operation, Value: r, Stack: stack}
		}
	}()

	return fn()
}

// Recover wraps a void function with panic recovery.
// Logs the panic but doesn't return an error.
// Use for cleanup operations where errors can't be returned.
func Recover(logger *slog.Logger, operation string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()

			logger.Error("Panic recovered in cleanup",
				"operation", operation,
				"panic", r,
				"stack", string(stack),
			)
		}
	}()

	fn()
}
