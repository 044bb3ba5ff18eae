// Package errors defines the error taxonomy shared by the scheduling engine
// and its collaborators. Every error here is recoverable: callers log it and
// keep going, none of them is allowed to take the process down.
package errors

import "fmt"

// Validation reasons reported by ValidationError
const (
	ReasonNotFuture    = "not future"
	ReasonHoliday      = "holiday"
	ReasonNoMedia      = "media reference not set"
	ReasonNoTime       = "time not set"
	ReasonInvalidDate  = "invalid date"
	ReasonInvalidTime  = "invalid time"
	ReasonNoneSelected = "none selected"
)

// ValidationError is returned when a front-end request is rejected before it
// reaches the queue. The event is never enqueued.
type ValidationError struct {
	Reason string
	Detail string
}

// NewValidationError creates a ValidationError with an optional detail message
func NewValidationError(reason string, detail ...string) *ValidationError {
	ve := &ValidationError{Reason: reason}
	if len(detail) > 0 {
		ve.Detail = detail[0]
	}
	return ve
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "rejected: " + e.Reason
	}
	return fmt.Sprintf("rejected: %s (%s)", e.Reason, e.Detail)
}

// PersistenceError wraps a failure to read or write the persisted state.
// The in-memory state stays authoritative when this is returned from a save.
type PersistenceError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// HolidayFetchError wraps a failure to retrieve the remote holiday list
type HolidayFetchError struct {
	Year int
	Err  error
}

func (e *HolidayFetchError) Error() string {
	return fmt.Sprintf("holiday fetch for %d failed: %v", e.Year, e.Err)
}

func (e *HolidayFetchError) Unwrap() error {
	return e.Err
}

// PlaybackError is returned by a playback backend that could not start or
// finish playing a media reference
type PlaybackError struct {
	MediaRef string
	Err      error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of %q failed: %v", e.MediaRef, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
