// Package client is a typed Go client for the autoplay daemon's JSON-RPC
// endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/metrics"
	"github.com/jz315/autoplay/internal/rpc"
)

// Result types returned by the daemon
type (
	Event          = rpc.EventInfo
	AddResult      = rpc.AddResult
	MutationResult = rpc.MutationResult
	Status         = rpc.StatusResult
	HolidayList    = rpc.HolidayListResult
	Stats          = metrics.Metrics
)

// DefaultTimeout bounds one call when no HTTP client is supplied
const DefaultTimeout = 10 * time.Second

// Client provides a simple API for managing the schedule of a running daemon
type Client struct {
	rpc *jrpc2.Client
}

// NewClient creates a client for the daemon listening on addr ("host:port"
// or a full URL), authenticating with secret. httpClient may be nil.
func NewClient(addr, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	authed := *httpClient
	base := authed.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	authed.Transport = &bearerTransport{token: secret, base: base}

	ch := jhttp.NewChannel(endpoint(addr), &jhttp.ChannelOptions{Client: &authed})
	return &Client{rpc: jrpc2.NewClient(ch, nil)}
}

// Add schedules media to play at date ("YYYY-MM-DD") and clock ("HH:MM").
// A rejection is returned as *errors.ValidationError. When the event was
// queued but not saved, the result carries a warning and err is nil.
func (c *Client) Add(ctx context.Context, date, clock, media string) (*AddResult, error) {
	var res AddResult
	if err := c.call(ctx, "schedule.add", &rpc.AddParams{Date: date, Time: clock, Media: media}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Delete removes the pending event at index in playback order
func (c *Client) Delete(ctx context.Context, index int) (*MutationResult, error) {
	var res MutationResult
	if err := c.call(ctx, "schedule.delete", &rpc.DeleteParams{Index: index}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns the pending events in playback order
func (c *Client) List(ctx context.Context) ([]Event, error) {
	var res rpc.ListResult
	if err := c.call(ctx, "schedule.list", nil, &res); err != nil {
		return nil, err
	}
	return res.Events, nil
}

// SetHoliday marks date as a holiday
func (c *Client) SetHoliday(ctx context.Context, date string) (*MutationResult, error) {
	var res MutationResult
	if err := c.call(ctx, "holiday.set", &rpc.DateParams{Date: date}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Holidays lists the known holidays of year; zero means the daemon's current year
func (c *Client) Holidays(ctx context.Context, year int) (*HolidayList, error) {
	var res HolidayList
	if err := c.call(ctx, "holiday.list", &rpc.YearParams{Year: year}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status reports what the worker is doing
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var res Status
	if err := c.call(ctx, "scheduler.status", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stats returns the daemon's counters
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var res Stats
	if err := c.call(ctx, "scheduler.stats", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Shutdown asks the daemon to exit
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, "system.shutdown", nil, &rpc.EmptyResult{})
}

// Close releases the client
func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if err := c.rpc.CallResult(ctx, method, params, result); err != nil {
		return fromRPCError(method, err)
	}
	return nil
}

// fromRPCError restores rejections as *errors.ValidationError
func fromRPCError(method string, err error) error {
	var re *jrpc2.Error
	if errors.As(err, &re) && re.Code == rpc.CodeRejected {
		var data rpc.RejectionData
		if len(re.Data) > 0 && json.Unmarshal(re.Data, &data) == nil && data.Reason != "" {
			return apperrors.NewValidationError(data.Reason, data.Detail)
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}

func endpoint(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr + rpc.Path
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}
