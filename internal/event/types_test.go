package event

import (
	"sort"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    Date
		wantErr bool
	}{
		{"2024-10-01", Date{2024, time.October, 1}, false},
		{" 2025-01-31 ", Date{2025, time.January, 31}, false},
		{"2024-02-30", Date{}, true},
		{"2024/10/01", Date{}, true},
		{"", Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    ClockTime
		wantErr bool
	}{
		{"09:00", ClockTime{9, 0}, false},
		{"9:05", ClockTime{9, 5}, false},
		{"23:59", ClockTime{23, 59}, false},
		{"24:00", ClockTime{}, true},
		{"12:60", ClockTime{}, true},
		{"12:5", ClockTime{}, true},
		{"noon", ClockTime{}, true},
		{"", ClockTime{}, true},
		{"9:+5", ClockTime{}, true},
		{"-0:00", ClockTime{}, true},
		{"+9:00", ClockTime{}, true},
		{"0x:00", ClockTime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClock(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatting(t *testing.T) {
	e := NewEvent(MustParseDate("2024-03-07"), ClockTime{Hour: 8, Minute: 5}, "/media/a.mp3")

	if e.Key() != "2024-03-07 08:05" {
		t.Errorf("Key() = %q", e.Key())
	}
	if e.String() != "2024-03-07 08:05 - /media/a.mp3" {
		t.Errorf("String() = %q", e.String())
	}
	if e.ID == "" {
		t.Error("expected NewEvent to assign an ID")
	}
}

func TestAt(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	e := NewEvent(MustParseDate("2024-03-07"), ClockTime{Hour: 8, Minute: 5}, "a.mp3")

	want := time.Date(2024, time.March, 7, 8, 5, 0, 0, loc)
	if got := e.At(loc); !got.Equal(want) {
		t.Errorf("At() = %v, want %v", got, want)
	}
}

func TestAddDays(t *testing.T) {
	d := MustParseDate("2024-02-28")

	if got := d.AddDays(1).String(); got != "2024-02-29" {
		t.Errorf("AddDays(1) = %s", got)
	}
	if got := d.AddDays(2).String(); got != "2024-03-01" {
		t.Errorf("AddDays(2) = %s", got)
	}
	if got := d.AddDays(-59).String(); got != "2023-12-31" {
		t.Errorf("AddDays(-59) = %s", got)
	}
}

func TestLess_StableOnTies(t *testing.T) {
	day := MustParseDate("2024-05-01")
	a := Event{ID: "a", Date: day, Time: ClockTime{10, 0}, Seq: 2}
	b := Event{ID: "b", Date: day, Time: ClockTime{10, 0}, Seq: 1}
	c := Event{ID: "c", Date: day, Time: ClockTime{9, 30}, Seq: 3}
	d := Event{ID: "d", Date: day.AddDays(-1), Time: ClockTime{23, 0}, Seq: 4}

	events := []Event{a, b, c, d}
	sort.Slice(events, func(i, j int) bool { return Less(events[i], events[j]) })

	got := ""
	for _, e := range events {
		got += e.ID
	}
	if got != "dcba" {
		t.Errorf("sorted order = %s, want dcba", got)
	}
}
