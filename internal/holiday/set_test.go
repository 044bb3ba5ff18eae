package holiday

import (
	"reflect"
	"testing"

	"github.com/jz315/autoplay/internal/event"
)

func TestSet_ParseAndStrings(t *testing.T) {
	s, err := ParseSet([]string{"2024-10-02", "2024-10-01", "2024-10-02"})
	if err != nil {
		t.Fatalf("ParseSet() error = %v", err)
	}

	want := []string{"2024-10-01", "2024-10-02"}
	if got := s.Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Strings() = %v, want %v", got, want)
	}

	if _, err := ParseSet([]string{"not-a-date"}); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestSet_Add(t *testing.T) {
	s := NewSet()
	d := event.MustParseDate("2024-05-01")

	if !s.Add(d) {
		t.Error("first Add should report a new member")
	}
	if s.Add(d) {
		t.Error("second Add should report an existing member")
	}
	if !s.Contains(d) {
		t.Error("expected member after Add")
	}
}

func TestExpandRange_CrossesMonth(t *testing.T) {
	dates, err := expandRange(event.MustParseDate("2024-01-30"), event.MustParseDate("2024-02-02"))
	if err != nil {
		t.Fatalf("expandRange() error = %v", err)
	}
	if len(dates) != 4 || dates[3].String() != "2024-02-02" {
		t.Errorf("unexpected expansion %v", dates)
	}
}
