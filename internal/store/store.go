// Package store persists the scheduler state: pending events, per-year
// holiday lists and the debug flag. The state is one small JSON document that
// is read once at startup and overwritten wholesale after every mutation.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	apperrors "github.com/jz315/autoplay/internal/errors"
)

// Record is one pending event as persisted. Times are local wall-clock
// values; the document carries no zone.
type Record struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Audio string `json:"audio"`
}

// State is the persisted document
type State struct {
	Schedules []Record            `json:"schedules"`
	Holidays  map[string][]string `json:"holidays"`
	Debug     bool                `json:"debug"`
}

// Store loads and saves the scheduler state
type Store interface {
	// Load returns the persisted state. A store that holds nothing yet
	// returns an empty state and no error.
	Load(ctx context.Context) (*State, error)
	// Save replaces the persisted state with s
	Save(ctx context.Context, s *State) error
}

// NewState returns an empty state
func NewState() *State {
	return &State{
		Schedules: []Record{},
		Holidays:  map[string][]string{},
	}
}

// Clone returns a deep copy of s
func (s *State) Clone() *State {
	c := &State{
		Schedules: append([]Record(nil), s.Schedules...),
		Holidays:  make(map[string][]string, len(s.Holidays)),
		Debug:     s.Debug,
	}
	if c.Schedules == nil {
		c.Schedules = []Record{}
	}
	for year, dates := range s.Holidays {
		c.Holidays[year] = append([]string(nil), dates...)
	}
	return c
}

func encode(s *State) ([]byte, error) {
	if s == nil {
		s = NewState()
	}
	out := s.Clone()
	for year := range out.Holidays {
		sort.Strings(out.Holidays[year])
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, &apperrors.PersistenceError{Op: "save", Err: fmt.Errorf("failed to marshal state: %w", err)}
	}
	return data, nil
}

func decode(data []byte) (*State, error) {
	s := NewState()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, &apperrors.PersistenceError{Op: "load", Err: fmt.Errorf("failed to unmarshal state: %w", err)}
	}
	if s.Schedules == nil {
		s.Schedules = []Record{}
	}
	if s.Holidays == nil {
		s.Holidays = map[string][]string{}
	}
	return s, nil
}
