package event

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DateLayout is the persisted and wire format of a calendar date
	DateLayout = "2006-01-02"
	// ClockLayout is the persisted and wire format of a time of day
	ClockLayout = "15:04"
)

// Date is a calendar date without a time of day or location
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "YYYY-MM-DD" string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals; it panics on malformed input
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as "YYYY-MM-DD"
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero date
func (d Date) IsZero() bool {
	return d == Date{}
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

// AddDays returns the date n days after d (n may be negative)
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// ClockTime is an hour:minute time of day
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM". A single-digit hour ("9:05") is accepted.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 || !allDigits(hh) || !allDigits(mm) {
		return ClockTime{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("invalid time %q: hour out of range", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("invalid time %q: minute out of range", s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String formats the time as "HH:MM"
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Compare returns -1, 0 or +1 depending on whether c is before, equal to or after o
func (c ClockTime) Compare(o ClockTime) int {
	if c.Hour != o.Hour {
		return cmpInt(c.Hour, o.Hour)
	}
	return cmpInt(c.Minute, o.Minute)
}

// Event is a one-shot playback scheduled for a date and time of day.
// Events are immutable once created; they leave the queue only by deletion
// or by being retired after playback.
type Event struct {
	// ID identifies the event for the lifetime of the process. It is not persisted.
	ID string
	// Date is the calendar day the event plays on
	Date Date
	// Time is the time of day the event plays at
	Time ClockTime
	// MediaRef locates the media to play (usually a file path)
	MediaRef string
	// Seq records insertion order and breaks ordering ties
	Seq uint64
}

// NewEvent creates an event with a fresh ID. Seq is assigned by the queue.
func NewEvent(date Date, clock ClockTime, mediaRef string) Event {
	return Event{
		ID:       uuid.New().String(),
		Date:     date,
		Time:     clock,
		MediaRef: mediaRef,
	}
}

// At returns the wall-clock instant the event is due in loc
func (e Event) At(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(e.Date.Year, e.Date.Month, e.Date.Day, e.Time.Hour, e.Time.Minute, 0, 0, loc)
}

// Key returns the "YYYY-MM-DD HH:MM" ordering key
func (e Event) Key() string {
	return e.Date.String() + " " + e.Time.String()
}

// String is used in log lines and list output
func (e Event) String() string {
	return fmt.Sprintf("%s - %s", e.Key(), e.MediaRef)
}

// Less orders events by (date, time) ascending with insertion order breaking ties
func Less(a, b Event) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	if c := a.Time.Compare(b.Time); c != 0 {
		return c < 0
	}
	return a.Seq < b.Seq
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
