package rpc

import (
	"time"

	"github.com/jz315/autoplay/internal/event"
	"github.com/jz315/autoplay/internal/scheduler"
)

// AddParams is the input for schedule.add.
type AddParams struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Media string `json:"media"`
}

// DeleteParams is the input for schedule.delete.
type DeleteParams struct {
	Index int `json:"index"`
}

// DateParams is the input for holiday.set.
type DateParams struct {
	Date string `json:"date"`
}

// YearParams is the input for holiday.list. Zero means the current year.
type YearParams struct {
	Year int `json:"year,omitempty"`
}

// EventInfo describes one pending event.
type EventInfo struct {
	ID    string    `json:"id"`
	Index int       `json:"index"`
	Date  string    `json:"date"`
	Time  string    `json:"time"`
	Media string    `json:"media"`
	Due   time.Time `json:"due"`
}

// AddResult is the response for schedule.add. Warning is set when the event
// was queued but could not be saved.
type AddResult struct {
	Event   EventInfo `json:"event"`
	Warning string    `json:"warning,omitempty"`
}

// MutationResult is the response for schedule.delete and holiday.set.
type MutationResult struct {
	Warning string `json:"warning,omitempty"`
}

// ListResult is the response for schedule.list.
type ListResult struct {
	Events []EventInfo `json:"events"`
}

// HolidayListResult is the response for holiday.list.
type HolidayListResult struct {
	Year  int      `json:"year"`
	Dates []string `json:"dates"`
}

// StatusResult is the response for scheduler.status.
type StatusResult struct {
	Running    bool       `json:"running"`
	State      string     `json:"state"`
	Generation uint64     `json:"generation"`
	Target     *EventInfo `json:"target,omitempty"`
	QueueDepth int        `json:"queueDepth"`
	Debug      bool       `json:"debug"`
}

// RejectionData is attached to validation errors.
type RejectionData struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}

func toEventInfo(ev event.Event, index int, loc *time.Location) EventInfo {
	return EventInfo{
		ID:    ev.ID,
		Index: index,
		Date:  ev.Date.String(),
		Time:  ev.Time.String(),
		Media: ev.MediaRef,
		Due:   ev.At(loc),
	}
}

func toStatusResult(st scheduler.WorkerStatus, debug bool, loc *time.Location) *StatusResult {
	res := &StatusResult{
		Running:    st.Running,
		State:      st.State.String(),
		Generation: st.Generation,
		QueueDepth: st.QueueDepth,
		Debug:      debug,
	}
	if st.Target != nil {
		info := toEventInfo(*st.Target, 0, loc)
		res.Target = &info
	}
	return res
}
