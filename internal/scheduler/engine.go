// Package scheduler runs the playback schedule: one long-lived worker
// goroutine that sleeps until the earliest pending event is due, plays it,
// retires it and moves on. Front-end operations mutate the queue under the
// same guard and wake the worker whenever the head changes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jz315/autoplay/internal/config"
	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/event"
	"github.com/jz315/autoplay/internal/holiday"
	"github.com/jz315/autoplay/internal/logger"
	"github.com/jz315/autoplay/internal/metrics"
	"github.com/jz315/autoplay/internal/playback"
	"github.com/jz315/autoplay/internal/queue"
)

// ErrAlreadyRunning is returned by Start while a worker loop is active
var ErrAlreadyRunning = errors.New("scheduler worker already running")

// Options configures an Engine. Queue and Player are required.
type Options struct {
	Queue    *queue.Queue
	Holidays holiday.Provider
	Player   playback.Port
	Worker   *config.WorkerConfig
	Metrics  *metrics.Collector
	Logger   logger.Logger
	// Now overrides the clock
	Now func() time.Time
}

// Engine owns the schedule queue, the worker handle and the wake channel.
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	queue  *queue.Queue
	handle WorkerHandle
	// wake holds at most one pending signal; senders never block
	wake chan struct{}

	// years whose holiday feed has been tried since the last refresh
	holidayTried map[int]bool
	// fetches in progress, closed when the year's result is stored
	holidayFetching map[int]chan struct{}

	holidays holiday.Provider
	player   playback.Port
	cfg      *config.WorkerConfig
	metrics  *metrics.Collector
	logger   logger.Logger
	now      func() time.Time

	running  bool
	loopDone chan struct{}
}

// New creates an engine. The worker is not started.
func New(opts Options) (*Engine, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("scheduler: queue is required")
	}
	if opts.Player == nil {
		return nil, fmt.Errorf("scheduler: player is required")
	}
	if opts.Worker == nil {
		opts.Worker = config.DefaultWorkerConfig()
	}
	if err := opts.Worker.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if opts.Holidays == nil {
		opts.Holidays = holiday.NewFeedProvider("", 0, opts.Logger)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		queue:           opts.Queue,
		wake:            make(chan struct{}, 1),
		holidayTried:    make(map[int]bool),
		holidayFetching: make(map[int]chan struct{}),
		holidays:        opts.Holidays,
		player:          opts.Player,
		cfg:             opts.Worker,
		metrics:         opts.Metrics,
		logger:          opts.Logger.WithComponent(logger.ComponentScheduler),
		now:             opts.Now,
	}, nil
}

// Bootstrap loads the persisted state, drops events whose time has passed and
// resolves the current year's holidays. A state that cannot be read is logged
// and replaced by an empty one; a failed holiday fetch leaves the year empty.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.mu.Lock()
	if err := e.queue.Load(ctx); err != nil {
		e.logger.Warn("Could not load state, starting empty", "error", err)
	}
	purged, err := e.queue.PurgeExpired(ctx, e.now())
	if err != nil {
		e.metrics.RecordPersistenceError()
	}
	e.metrics.RecordQueueDepth(int64(e.queue.Len()))
	e.logger.Info("State loaded",
		"pending", e.queue.Len(),
		"purged", purged,
		"debug", e.queue.Debug())
	e.mu.Unlock()

	if err := e.RefreshHolidays(ctx); err != nil {
		e.logger.Warn("Continuing without holidays for this year", "error", err)
	}
	return nil
}

// Debug reports the persisted debug flag
func (e *Engine) Debug() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Debug()
}

// AddEvent validates and queues a new event. The worker is woken when the
// event becomes the head. A *errors.PersistenceError means the event is
// queued but was not saved.
func (e *Engine) AddEvent(ctx context.Context, date, clock, mediaRef string) (event.Event, error) {
	ev, err := parseEvent(date, clock, mediaRef)
	if err != nil {
		e.recordRejection(err)
		return event.Event{}, err
	}

	// Reject what needs no holiday list before touching the feed
	e.mu.Lock()
	err = e.queue.Check(ev, e.now())
	e.mu.Unlock()
	if err != nil {
		return event.Event{}, e.reject(ev, err)
	}

	if err := e.ensureHolidays(ctx, ev.Date.Year); err != nil && ctx.Err() != nil {
		return event.Event{}, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	becameHead, err := e.queue.Add(ctx, ev, e.now())
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		return event.Event{}, e.reject(ev, err)
	}

	e.metrics.RecordEventAdded()
	e.metrics.RecordQueueDepth(int64(e.queue.Len()))
	if err != nil {
		e.metrics.RecordPersistenceError()
	}
	if becameHead {
		e.signalLocked()
	}

	e.logger.InfoContext(logger.WithEventID(ctx, ev.ID), "Event added",
		"event", ev.String(),
		"head", becameHead)
	return ev, err
}

// DeleteEvent removes the event at index. Deleting the head wakes the worker.
// An event that is already playing keeps playing.
func (e *Engine) DeleteEvent(ctx context.Context, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev, err := e.queue.RemoveAt(ctx, index)
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		return err
	}

	e.metrics.RecordEventDeleted()
	e.metrics.RecordQueueDepth(int64(e.queue.Len()))
	if err != nil {
		e.metrics.RecordPersistenceError()
	}
	if index == 0 {
		e.signalLocked()
	}

	e.logger.InfoContext(logger.WithEventID(ctx, ev.ID), "Event deleted",
		"event", ev.String(),
		"index", index)
	return err
}

// SetHoliday marks date as a holiday. Events already queued on that date are
// left alone.
func (e *Engine) SetHoliday(ctx context.Context, date string) error {
	d, err := event.ParseDate(date)
	if err != nil {
		return apperrors.NewValidationError(apperrors.ReasonInvalidDate, date)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	added, err := e.queue.SetHoliday(ctx, d)
	if err != nil {
		e.metrics.RecordPersistenceError()
	}
	if added {
		e.logger.Info("Holiday set", "date", d.String())
	}
	return err
}

// ListEvents returns the pending events in playback order
func (e *Engine) ListEvents() []event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Snapshot()
}

// Holidays returns the known holidays of year in ascending order
func (e *Engine) Holidays(year int) []event.Date {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Holidays(year).Dates()
}

// Location is the time zone event times are interpreted in
func (e *Engine) Location() *time.Location {
	return e.queue.Location()
}

// Status reports what the worker is doing
func (e *Engine) Status() WorkerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := WorkerStatus{
		Running:    e.running,
		State:      e.handle.State,
		Generation: e.handle.Generation,
		QueueDepth: e.queue.Len(),
	}
	if e.handle.Target != "" {
		for _, ev := range e.queue.Snapshot() {
			if ev.ID == e.handle.Target {
				ev := ev
				st.Target = &ev
				st.Due = ev.At(e.queue.Location())
				break
			}
		}
	}
	return st
}

// Start launches the worker loop. It fails if a loop is already active.
// Cancelling ctx ends the loop the same way Shutdown does, except that a
// playback in progress is still waited for.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}
	e.running = true
	e.handle.stopping = false
	e.loopDone = make(chan struct{})

	go e.run(ctx, e.loopDone)
	return nil
}

// Shutdown asks the worker loop to exit and waits until it has, or until ctx
// expires. A playback in progress is allowed to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.handle.stopping = true
	e.signalLocked()
	done := e.loopDone
	e.mu.Unlock()

	select {
	case <-done:
		e.logger.Info("Scheduler shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// signalLocked wakes the worker. The guard must be held.
func (e *Engine) signalLocked() {
	e.handle.Generation++
	e.metrics.RecordWakeup()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) reject(ev event.Event, err error) error {
	e.recordRejection(err)
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		e.logger.Info("Event rejected", "event", ev.String(), "reason", ve.Reason)
	}
	return err
}

func (e *Engine) recordRejection(err error) {
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		e.metrics.RecordEventRejected(ve.Reason)
	}
}

func parseEvent(date, clock, mediaRef string) (event.Event, error) {
	if strings.TrimSpace(clock) == "" {
		return event.Event{}, apperrors.NewValidationError(apperrors.ReasonNoTime)
	}
	c, err := event.ParseClock(clock)
	if err != nil {
		return event.Event{}, apperrors.NewValidationError(apperrors.ReasonInvalidTime, clock)
	}
	d, err := event.ParseDate(date)
	if err != nil {
		return event.Event{}, apperrors.NewValidationError(apperrors.ReasonInvalidDate, date)
	}
	return event.NewEvent(d, c, mediaRef), nil
}
