package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/event"
	"github.com/jz315/autoplay/internal/logger"
	"github.com/jz315/autoplay/internal/playback"
)

type planKind int

const (
	planStop planKind = iota
	planIdle
	planWait
)

// plan is one wait cycle decided under the guard
type plan struct {
	kind   planKind
	target event.Event
	gen    uint64
	wait   time.Duration
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	log := e.logger.WithComponent(logger.ComponentWorker)
	log.Info("Worker started", "config", e.cfg.String())

	for !e.cycleSafe(ctx, log) {
	}

	e.mu.Lock()
	e.handle.State = StateIdle
	e.handle.Target = ""
	e.running = false
	e.mu.Unlock()

	log.Info("Worker stopped")
}

// cycleSafe runs one cycle and turns a panic into a logged error followed by
// a back-off. It reports whether the loop should exit.
func (e *Engine) cycleSafe(ctx context.Context, log logger.Logger) (exit bool) {
	defer func() {
		if pe := apperrors.AsPanicError(recover()); pe != nil {
			e.metrics.RecordPanic()
			log.Error("Worker cycle panicked",
				"panic", apperrors.FormatPanicForLog(pe))
			select {
			case <-time.After(e.cfg.PanicBackoff):
			case <-ctx.Done():
			}
			exit = false
		}
	}()
	return e.cycle(ctx, log)
}

func (e *Engine) cycle(ctx context.Context, log logger.Logger) bool {
	p := e.plan(log)

	switch p.kind {
	case planStop:
		return true

	case planIdle:
		select {
		case <-e.wake:
			return false
		case <-ctx.Done():
			return true
		}
	}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()

	select {
	case <-e.wake:
		return false
	case <-ctx.Done():
		return true
	case <-timer.C:
	}

	ev, started, ok := e.claim(ctx, p, log)
	if !ok {
		return false
	}
	if started {
		e.awaitPlayback(ctx, ev, log)
	}
	e.retire(ctx, ev, log)
	return false
}

// plan picks what to do next from the current head
func (e *Engine) plan(log logger.Logger) plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle.stopping {
		e.handle.State = StateIdle
		e.handle.Target = ""
		return plan{kind: planStop}
	}

	head, ok := e.queue.PeekHead()
	if !ok {
		if e.handle.State != StateIdle {
			log.Debug("Queue empty, worker idle")
		}
		e.handle.State = StateIdle
		e.handle.Target = ""
		return plan{kind: planIdle}
	}

	due := head.At(e.queue.Location())
	wait := due.Sub(e.now())
	if wait < 0 {
		wait = 0
	}
	if wait > e.cfg.MaxWait {
		wait = e.cfg.MaxWait
	}

	if e.handle.State != StateWaiting || e.handle.Target != head.ID {
		log.InfoContext(logger.WithEventID(context.Background(), head.ID), "Waiting for event",
			"event", head.String(),
			"due", humanize.Time(due))
	}
	e.handle.State = StateWaiting
	e.handle.Target = head.ID

	return plan{kind: planWait, target: head, gen: e.handle.Generation, wait: wait}
}

// claim re-checks the head after the timer fired and starts playback. ok is
// false when the cycle should simply be re-planned; started is false when
// the port refused the media and the event should go straight to retirement.
func (e *Engine) claim(ctx context.Context, p plan, log logger.Logger) (ev event.Event, started, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle.stopping || e.handle.Generation != p.gen || ctx.Err() != nil {
		return event.Event{}, false, false
	}

	head, found := e.queue.PeekHead()
	if !found {
		return event.Event{}, false, false
	}
	if head.ID != p.target.ID {
		// Every head change signals, so this means a mutation skipped the wake
		log.Error("Head changed without a wake signal",
			"expected", p.target.String(),
			"actual", head.String())
		return event.Event{}, false, false
	}
	if e.now().Before(head.At(e.queue.Location())) {
		// MaxWait elapsed before the event was due
		return event.Event{}, false, false
	}

	evCtx := logger.WithEventID(ctx, head.ID)
	if err := e.player.Start(ctx, head.MediaRef); err != nil {
		e.metrics.RecordPlaybackFailed()
		log.ErrorContext(evCtx, "Playback failed to start",
			"event", head.String(),
			"error", err)
		e.handle.State = StateRetiring
		return head, false, true
	}

	e.metrics.RecordPlaybackStarted()
	e.handle.State = StatePlaying
	log.WithSource(logger.LogSourcePlayback).InfoContext(evCtx, "Playback started",
		"event", head.String(),
		"late", e.now().Sub(head.At(e.queue.Location())).Round(time.Millisecond).String())
	return head, true, true
}

// awaitPlayback blocks until the port finishes or MaxPlayback elapses. It
// does not hold the guard and ignores ctx: playback is never cut short by
// cancellation.
func (e *Engine) awaitPlayback(ctx context.Context, ev event.Event, log logger.Logger) {
	start := time.Now()
	evCtx := logger.WithEventID(ctx, ev.ID)

	var limit <-chan time.Time
	if e.cfg.MaxPlayback > 0 {
		t := time.NewTimer(e.cfg.MaxPlayback)
		defer t.Stop()
		limit = t.C
	}

	if e.waitDone(limit) {
		e.metrics.RecordPlaybackCompleted(time.Since(start))
		log.WithSource(logger.LogSourcePlayback).InfoContext(evCtx, "Playback finished",
			"event", ev.String(),
			"duration", time.Since(start).Round(time.Second).String())
		return
	}

	log.WithSource(logger.LogSourcePlayback).WarnContext(evCtx, "Playback exceeded limit, stopping",
		"event", ev.String(),
		"limit", e.cfg.MaxPlayback.String())
	if err := e.player.Stop(); err != nil {
		log.ErrorContext(evCtx, "Failed to stop player", "error", err)
	}
	e.metrics.RecordPlaybackStopped(time.Since(start))

	// Give the player a moment to exit so the next Start does not find it busy
	grace := time.NewTimer(5 * e.cfg.PollInterval)
	defer grace.Stop()
	if !e.waitDone(grace.C) {
		log.WarnContext(evCtx, "Player still busy after stop")
	}
}

// waitDone waits for the port to go idle and reports false if limit fired
// first
func (e *Engine) waitDone(limit <-chan time.Time) bool {
	if n, ok := e.player.(playback.Notifier); ok {
		select {
		case <-n.Done():
			return true
		case <-limit:
			return false
		}
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for e.player.Busy() {
		select {
		case <-ticker.C:
		case <-limit:
			return false
		}
	}
	return true
}

// retire removes the played event by identity and persists
func (e *Engine) retire(ctx context.Context, ev event.Event, log logger.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handle.State = StateRetiring
	evCtx := logger.WithEventID(ctx, ev.ID)

	// Saving must not fail just because shutdown cancelled ctx
	removed, err := e.queue.Retire(context.WithoutCancel(ctx), ev.ID)
	var pe *apperrors.PersistenceError
	if errors.As(err, &pe) {
		e.metrics.RecordPersistenceError()
		log.ErrorContext(evCtx, "Retired event not persisted", "error", err)
	}
	e.metrics.RecordQueueDepth(int64(e.queue.Len()))

	if !removed {
		log.InfoContext(evCtx, "Event was deleted during playback", "event", ev.String())
		return
	}
	log.InfoContext(evCtx, "Event retired", "event", ev.String(), "pending", e.queue.Len())
}
