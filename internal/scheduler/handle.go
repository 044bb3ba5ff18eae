package scheduler

import (
	"time"

	"github.com/jz315/autoplay/internal/event"
)

// WorkerState is the phase of the worker loop
type WorkerState int

const (
	// StateIdle means no event is pending, or the loop is not running
	StateIdle WorkerState = iota
	// StateWaiting means the worker is sleeping until the head is due
	StateWaiting
	// StatePlaying means the head's media is playing
	StatePlaying
	// StateRetiring means the played event is being removed and persisted
	StateRetiring
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StatePlaying:
		return "playing"
	case StateRetiring:
		return "retiring"
	default:
		return "unknown"
	}
}

// WorkerHandle is the worker's shared state. It is read and written only
// with the engine guard held.
type WorkerHandle struct {
	State WorkerState
	// Generation is bumped on every wake signal. A worker that wakes from its
	// timer with a generation other than the one it went to sleep with knows
	// its wait was superseded.
	Generation uint64
	// Target is the ID of the event being waited on or played
	Target string

	stopping bool
}

// WorkerStatus is a point-in-time view of the worker
type WorkerStatus struct {
	Running    bool
	State      WorkerState
	Generation uint64
	// Target is the event being waited on or played, if any
	Target     *event.Event
	Due        time.Time
	QueueDepth int
}
