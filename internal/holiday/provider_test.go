package holiday

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/event"
	"github.com/jz315/autoplay/internal/logger"
)

const sampleFeed = `{
  "Name": "China holidays",
  "Years": {
    "2024": [
      {"Name": "New Year", "StartDate": "2024-01-01", "EndDate": "2024-01-01"},
      {"Name": "National Day", "StartDate": "2024-10-01", "EndDate": "2024-10-07"}
    ],
    "2025": [
      {"Name": "New Year", "StartDate": "2025-01-01", "EndDate": "2025-01-01"}
    ]
  }
}`

func feedServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_ExpandsInclusiveRanges(t *testing.T) {
	srv := feedServer(t, http.StatusOK, sampleFeed, nil)
	p := NewFeedProvider(srv.URL, time.Second, &logger.NoOpLogger{})

	set, err := p.Resolve(context.Background(), 2024, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(set) != 8 {
		t.Errorf("expected 8 dates, got %d: %v", len(set), set.Strings())
	}
	for _, d := range []string{"2024-01-01", "2024-10-01", "2024-10-04", "2024-10-07"} {
		if !set.Contains(event.MustParseDate(d)) {
			t.Errorf("expected %s in set", d)
		}
	}
	if set.Contains(event.MustParseDate("2024-10-08")) {
		t.Error("2024-10-08 is past the range end")
	}
	if set.Contains(event.MustParseDate("2025-01-01")) {
		t.Error("other years must not leak into the set")
	}
}

func TestResolve_CachedSkipsFetch(t *testing.T) {
	var hits int32
	srv := feedServer(t, http.StatusOK, sampleFeed, &hits)
	p := NewFeedProvider(srv.URL, time.Second, &logger.NoOpLogger{})

	cached := NewSet(event.MustParseDate("2024-05-01"))
	set, err := p.Resolve(context.Background(), 2024, cached)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(set) != 1 || !set.Contains(event.MustParseDate("2024-05-01")) {
		t.Errorf("expected cached set back, got %v", set.Strings())
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no request, got %d", hits)
	}
}

func TestResolve_EmptyURLDisablesFetch(t *testing.T) {
	p := NewFeedProvider("", time.Second, &logger.NoOpLogger{})

	set, err := p.Resolve(context.Background(), 2024, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty set, got %v", set.Strings())
	}
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		year   int
	}{
		{"server error", http.StatusInternalServerError, "oops", 2024},
		{"bad json", http.StatusOK, "{", 2024},
		{"missing year", http.StatusOK, sampleFeed, 2030},
		{"bad date", http.StatusOK, `{"Years":{"2024":[{"StartDate":"2024-13-01","EndDate":"2024-13-02"}]}}`, 2024},
		{"reversed range", http.StatusOK, `{"Years":{"2024":[{"StartDate":"2024-10-07","EndDate":"2024-10-01"}]}}`, 2024},
		{"range too long", http.StatusOK, `{"Years":{"2024":[{"StartDate":"2023-01-01","EndDate":"2024-12-31"}]}}`, 2024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := feedServer(t, tt.status, tt.body, nil)
			p := NewFeedProvider(srv.URL, time.Second, &logger.NoOpLogger{})

			_, err := p.Resolve(context.Background(), tt.year, nil)
			var fe *apperrors.HolidayFetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected HolidayFetchError, got %v", err)
			}
			if fe.Year != tt.year {
				t.Errorf("expected year %d, got %d", tt.year, fe.Year)
			}
		})
	}
}

func TestResolve_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	p := NewFeedProvider(srv.URL, 50*time.Millisecond, &logger.NoOpLogger{})

	_, err := p.Resolve(context.Background(), 2024, nil)
	var fe *apperrors.HolidayFetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected HolidayFetchError, got %v", err)
	}
}
