// Package holiday resolves the dates on which playback must not be scheduled.
// Holidays come from a user-maintained list or, when a year has none, from a
// public JSON calendar fetched over HTTP.
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/event"
	"github.com/jz315/autoplay/internal/logger"
)

// maxRangeDays bounds a single feed range; a holiday block never spans a year
const maxRangeDays = 366

// maxFeedBytes bounds the feed body
const maxFeedBytes = 8 << 20

// Provider resolves the holiday set for a year
type Provider interface {
	// Resolve returns cached unchanged when it is non-empty. Otherwise it
	// fetches the year's holidays; failures are *errors.HolidayFetchError.
	Resolve(ctx context.Context, year int, cached Set) (Set, error)
}

// feed is the wire shape of the holiday calendar
type feed struct {
	Years map[string][]feedRange `json:"Years"`
}

type feedRange struct {
	Name      string `json:"Name"`
	StartDate string `json:"StartDate"`
	EndDate   string `json:"EndDate"`
}

// FeedProvider fetches holidays from a JSON calendar over HTTP
type FeedProvider struct {
	url    string
	client *http.Client
	logger logger.Logger
}

// NewFeedProvider creates a provider for url with a per-request timeout.
// An empty url disables fetching: Resolve then returns an empty set.
func NewFeedProvider(url string, timeout time.Duration, log logger.Logger) *FeedProvider {
	if log == nil {
		log = logger.Default()
	}
	return &FeedProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: log.WithComponent(logger.ComponentHoliday),
	}
}

// Resolve implements Provider
func (p *FeedProvider) Resolve(ctx context.Context, year int, cached Set) (Set, error) {
	if len(cached) > 0 {
		return cached, nil
	}
	if p.url == "" {
		return NewSet(), nil
	}

	start := time.Now()
	set, err := p.fetch(ctx, year)
	if err != nil {
		return nil, &apperrors.HolidayFetchError{Year: year, Err: err}
	}

	p.logger.Info("Fetched holidays",
		"year", year,
		"count", len(set),
		"duration", time.Since(start).String())
	return set, nil
}

func (p *FeedProvider) fetch(ctx context.Context, year int) (Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var f feed
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	return parseYear(f, year)
}

func parseYear(f feed, year int) (Set, error) {
	ranges, ok := f.Years[strconv.Itoa(year)]
	if !ok {
		return nil, fmt.Errorf("feed has no entry for %d", year)
	}

	set := NewSet()
	for _, r := range ranges {
		start, err := event.ParseDate(r.StartDate)
		if err != nil {
			return nil, err
		}
		end, err := event.ParseDate(r.EndDate)
		if err != nil {
			return nil, err
		}
		dates, err := expandRange(start, end)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			set.Add(d)
		}
	}
	return set, nil
}
