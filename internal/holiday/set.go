package holiday

import (
	"fmt"
	"sort"

	"github.com/jz315/autoplay/internal/event"
)

// Set is a set of calendar dates on which no event may be scheduled
type Set map[event.Date]struct{}

// NewSet returns a set holding dates
func NewSet(dates ...event.Date) Set {
	s := make(Set, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

// ParseSet builds a set from "YYYY-MM-DD" strings
func ParseSet(dates []string) (Set, error) {
	s := make(Set, len(dates))
	for _, raw := range dates {
		d, err := event.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		s[d] = struct{}{}
	}
	return s, nil
}

// Contains reports whether d is in the set
func (s Set) Contains(d event.Date) bool {
	_, ok := s[d]
	return ok
}

// Add inserts d and reports whether it was new
func (s Set) Add(d event.Date) bool {
	if _, ok := s[d]; ok {
		return false
	}
	s[d] = struct{}{}
	return true
}

// Dates returns the members in ascending order
func (s Set) Dates() []event.Date {
	out := make([]event.Date, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Strings returns the members as sorted "YYYY-MM-DD" strings
func (s Set) Strings() []string {
	dates := s.Dates()
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

// Union adds every member of o to s
func (s Set) Union(o Set) {
	for d := range o {
		s[d] = struct{}{}
	}
}

// expandRange returns every date from start to end inclusive
func expandRange(start, end event.Date) ([]event.Date, error) {
	if end.Compare(start) < 0 {
		return nil, fmt.Errorf("range %s..%s ends before it starts", start, end)
	}
	var out []event.Date
	for d := start; d.Compare(end) <= 0; d = d.AddDays(1) {
		out = append(out, d)
		if len(out) > maxRangeDays {
			return nil, fmt.Errorf("range %s..%s is longer than %d days", start, end, maxRangeDays)
		}
	}
	return out, nil
}
