package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError represents an error recovered from a panic
type PanicError struct {
	Value      interface{} // The panic value
	Stacktrace string      // Full stack trace
}

// Error implements the error interface
func (p *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", p.Value)
}

// AsPanicError converts a recovered panic value into a PanicError.
// Returns nil when r is nil so it can be fed straight from recover():
//
//	defer func() {
//		if perr := errors.AsPanicError(recover()); perr != nil {
//			...
//		}
//	}()
func AsPanicError(r interface{}) *PanicError {
	if r == nil {
		return nil
	}
	return &PanicError{
		Value:      r,
		Stacktrace: string(debug.Stack()),
	}
}

// FormatPanicForLog returns a formatted string suitable for logging
func FormatPanicForLog(panicErr *PanicError) string {
	return fmt.Sprintf("PANIC: %v\n\nStack Trace:\n%s", panicErr.Value, panicErr.Stacktrace)
}
