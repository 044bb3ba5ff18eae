// Package queue holds the pending playback events in time order and keeps the
// persisted state in step with every change.
//
// Queue is not safe for concurrent use. The scheduler engine owns the only
// instance and calls it with its guard held.
package queue

import (
	"context"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/event"
	"github.com/jz315/autoplay/internal/holiday"
	"github.com/jz315/autoplay/internal/logger"
	"github.com/jz315/autoplay/internal/store"
)

// Queue is the ordered container of pending events. Index 0 is the head, the
// event the worker waits on.
type Queue struct {
	store    store.Store
	loc      *time.Location
	logger   logger.Logger
	events   []event.Event
	holidays map[int]holiday.Set
	debug    bool
	seq      uint64
}

// New creates an empty queue persisting through st. Event times are
// interpreted in loc.
func New(st store.Store, loc *time.Location, log logger.Logger) *Queue {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Default()
	}
	return &Queue{
		store:    st,
		loc:      loc,
		logger:   log.WithComponent(logger.ComponentStore),
		holidays: make(map[int]holiday.Set),
	}
}

// Load replaces the in-memory contents with the persisted state. Records that
// no longer parse are dropped with a warning. On error the queue is left empty
// so the caller can continue with a cold start.
func (q *Queue) Load(ctx context.Context) error {
	q.events = nil
	q.holidays = make(map[int]holiday.Set)
	q.debug = false

	st, err := q.store.Load(ctx)
	if err != nil {
		return err
	}

	q.debug = st.Debug

	for yearStr, dates := range st.Holidays {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			q.logger.Warn("Dropping holidays under malformed year", "year", yearStr)
			continue
		}
		set := holiday.NewSet()
		for _, raw := range dates {
			d, err := event.ParseDate(raw)
			if err != nil {
				q.logger.Warn("Dropping malformed holiday", "date", raw)
				continue
			}
			set.Add(d)
		}
		q.holidays[year] = set
	}

	for _, rec := range st.Schedules {
		ev, err := fromRecord(rec)
		if err != nil {
			q.logger.Warn("Dropping malformed schedule", "date", rec.Date, "time", rec.Time, "error", err)
			continue
		}
		q.seq++
		ev.Seq = q.seq
		q.events = append(q.events, ev)
	}
	q.sort()

	return nil
}

// Add validates ev against now and the holiday list, inserts it in order and
// persists. It reports whether ev became the head. A PersistenceError after a
// successful insert leaves ev queued.
func (q *Queue) Add(ctx context.Context, ev event.Event, now time.Time) (bool, error) {
	if err := q.Check(ev, now); err != nil {
		return false, err
	}

	q.seq++
	ev.Seq = q.seq
	q.events = append(q.events, ev)
	q.sort()

	becameHead := q.events[0].ID == ev.ID
	return becameHead, q.save(ctx)
}

// Check returns the ValidationError Add would reject ev with, or nil. It
// changes nothing.
func (q *Queue) Check(ev event.Event, now time.Time) error {
	if ev.MediaRef == "" {
		return apperrors.NewValidationError(apperrors.ReasonNoMedia)
	}
	if !ev.At(q.loc).After(now) {
		return apperrors.NewValidationError(apperrors.ReasonNotFuture, ev.Key())
	}
	if q.IsHoliday(ev.Date) {
		return apperrors.NewValidationError(apperrors.ReasonHoliday, ev.Date.String())
	}
	return nil
}

// RemoveAt deletes the event at index i and returns it
func (q *Queue) RemoveAt(ctx context.Context, i int) (event.Event, error) {
	if i < 0 || i >= len(q.events) {
		return event.Event{}, apperrors.NewValidationError(apperrors.ReasonNoneSelected, strconv.Itoa(i))
	}
	ev := q.events[i]
	q.events = append(q.events[:i], q.events[i+1:]...)
	return ev, q.save(ctx)
}

// PurgeExpired drops every event due strictly before now and returns how
// many were dropped. Running it twice with the same now drops nothing the
// second time.
func (q *Queue) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	kept := q.events[:0]
	for _, ev := range q.events {
		if ev.At(q.loc).Before(now) {
			q.logger.Info("Purging expired event", "event", ev.String())
			continue
		}
		kept = append(kept, ev)
	}
	purged := len(q.events) - len(kept)
	q.events = kept
	if purged == 0 {
		return 0, nil
	}
	return purged, q.save(ctx)
}

// PeekHead returns the head without removing it
func (q *Queue) PeekHead() (event.Event, bool) {
	if len(q.events) == 0 {
		return event.Event{}, false
	}
	return q.events[0], true
}

// PopHead removes and returns the head
func (q *Queue) PopHead(ctx context.Context) (event.Event, bool, error) {
	if len(q.events) == 0 {
		return event.Event{}, false, nil
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true, q.save(ctx)
}

// Retire removes the event with the given ID wherever it sits. It reports
// false when the event is already gone.
func (q *Queue) Retire(ctx context.Context, id string) (bool, error) {
	for i, ev := range q.events {
		if ev.ID == id {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return true, q.save(ctx)
		}
	}
	return false, nil
}

// Snapshot returns a copy of the pending events in order
func (q *Queue) Snapshot() []event.Event {
	out := make([]event.Event, len(q.events))
	copy(out, q.events)
	return out
}

// Len returns the number of pending events
func (q *Queue) Len() int {
	return len(q.events)
}

// IsHoliday reports whether d is a holiday of its own year
func (q *Queue) IsHoliday(d event.Date) bool {
	return q.holidays[d.Year].Contains(d)
}

// Holidays returns a copy of the holiday set for year
func (q *Queue) Holidays(year int) holiday.Set {
	out := holiday.NewSet()
	out.Union(q.holidays[year])
	return out
}

// SetHoliday marks d as a holiday and persists. Events already queued on d
// stay queued. It reports whether d was new.
func (q *Queue) SetHoliday(ctx context.Context, d event.Date) (bool, error) {
	set, ok := q.holidays[d.Year]
	if !ok {
		set = holiday.NewSet()
		q.holidays[d.Year] = set
	}
	if !set.Add(d) {
		return false, nil
	}
	return true, q.save(ctx)
}

// SetHolidays merges a resolved holiday set into year and persists
func (q *Queue) SetHolidays(ctx context.Context, year int, set holiday.Set) error {
	if len(set) == 0 {
		return nil
	}
	cur, ok := q.holidays[year]
	if !ok {
		cur = holiday.NewSet()
		q.holidays[year] = cur
	}
	cur.Union(set)
	return q.save(ctx)
}

// Debug returns the persisted debug flag
func (q *Queue) Debug() bool {
	return q.debug
}

// Location returns the zone event times are interpreted in
func (q *Queue) Location() *time.Location {
	return q.loc
}

func (q *Queue) sort() {
	sort.SliceStable(q.events, func(i, j int) bool {
		return event.Less(q.events[i], q.events[j])
	})
}

func (q *Queue) save(ctx context.Context) error {
	st := store.NewState()
	st.Debug = q.debug
	for _, ev := range q.events {
		st.Schedules = append(st.Schedules, toRecord(ev))
	}
	for year, set := range q.holidays {
		if len(set) == 0 {
			continue
		}
		st.Holidays[strconv.Itoa(year)] = set.Strings()
	}

	if err := q.store.Save(ctx, st); err != nil {
		q.logger.Error("Failed to persist state", "error", err)
		return err
	}
	return nil
}

func toRecord(ev event.Event) store.Record {
	return store.Record{
		Date:  ev.Date.String(),
		Time:  ev.Time.String(),
		Audio: ev.MediaRef,
	}
}

func fromRecord(rec store.Record) (event.Event, error) {
	d, err := event.ParseDate(rec.Date)
	if err != nil {
		return event.Event{}, err
	}
	c, err := event.ParseClock(rec.Time)
	if err != nil {
		return event.Event{}, err
	}
	return event.NewEvent(d, c, rec.Audio), nil
}
