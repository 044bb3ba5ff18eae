package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jz315/autoplay/internal/logger"
)

// RefreshHolidays resolves the current year's holidays when none are known
// yet. It is run at startup and by the refresh job, so a daemon that keeps
// running across New Year picks up the new list.
func (e *Engine) RefreshHolidays(ctx context.Context) error {
	year := e.now().In(e.queue.Location()).Year()

	e.mu.Lock()
	delete(e.holidayTried, year)
	e.mu.Unlock()

	return e.ensureHolidays(ctx, year)
}

// ensureHolidays fetches year's holidays once unless some are already known.
// The fetch runs without the guard held; concurrent callers for the same year
// wait for it to finish so none of them validates against a partial list.
func (e *Engine) ensureHolidays(ctx context.Context, year int) error {
	e.mu.Lock()
	for {
		inflight, ok := e.holidayFetching[year]
		if !ok {
			break
		}
		e.mu.Unlock()
		select {
		case <-inflight:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.mu.Lock()
	}
	cached := e.queue.Holidays(year)
	if len(cached) > 0 || e.holidayTried[year] {
		e.mu.Unlock()
		return nil
	}
	e.holidayTried[year] = true
	done := make(chan struct{})
	e.holidayFetching[year] = done
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.holidayFetching, year)
		// A fetch cut short by its caller says nothing about the feed
		if ctx.Err() != nil && len(e.queue.Holidays(year)) == 0 {
			delete(e.holidayTried, year)
		}
		e.mu.Unlock()
		close(done)
	}()

	set, err := e.holidays.Resolve(ctx, year, cached)
	if err != nil {
		e.metrics.RecordHolidayFetchError()
		e.logger.Warn("Holiday lookup failed", "year", year, "error", err)
		return err
	}
	if len(set) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.queue.SetHolidays(ctx, year, set); err != nil {
		e.metrics.RecordPersistenceError()
		return err
	}
	e.logger.Info("Holidays cached", "year", year, "count", len(set))
	return nil
}

// HolidayRefresher runs RefreshHolidays on a cron schedule
type HolidayRefresher struct {
	cron    *cron.Cron
	engine  *Engine
	timeout time.Duration
	logger  logger.Logger
}

// NewHolidayRefresher schedules refreshes of e's holidays according to spec,
// a standard five-field cron expression or a descriptor such as "@daily"
func NewHolidayRefresher(e *Engine, spec string, loc *time.Location, timeout time.Duration, log logger.Logger) (*HolidayRefresher, error) {
	if log == nil {
		log = logger.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	log = log.WithComponent(logger.ComponentHoliday)

	r := &HolidayRefresher{
		engine:  e,
		timeout: timeout,
		logger:  log,
	}
	cl := cronLogger{log: log}
	r.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := r.cron.AddFunc(spec, r.refresh); err != nil {
		return nil, fmt.Errorf("invalid holiday refresh schedule %q: %w", spec, err)
	}
	return r, nil
}

func (r *HolidayRefresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.engine.RefreshHolidays(ctx); err != nil {
		r.logger.Warn("Scheduled holiday refresh failed", "error", err)
	}
}

// Start runs the schedule in the background
func (r *HolidayRefresher) Start() {
	r.cron.Start()
	r.logger.Info("Holiday refresh scheduled", "entries", len(r.cron.Entries()))
}

// Stop halts the schedule and waits for a running refresh to return or ctx
// to expire
func (r *HolidayRefresher) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
