// Package playback defines the port the scheduler plays media through and the
// default implementation, which runs an external player process.
package playback

import "context"

// Port plays one media reference at a time
type Port interface {
	// Start begins playing mediaRef and returns once playback is underway.
	// Failures are *errors.PlaybackError.
	Start(ctx context.Context, mediaRef string) error
	// Busy reports whether playback is still in progress
	Busy() bool
	// Stop ends the current playback, if any
	Stop() error
}

// Notifier is implemented by ports that can signal completion instead of
// being polled through Busy
type Notifier interface {
	// Done returns a channel closed when the current playback ends. With
	// nothing playing the returned channel is already closed.
	Done() <-chan struct{}
}
