// Package rpc exposes the scheduling engine as a JSON-RPC 2.0 endpoint over
// HTTP. Every request must carry the configured bearer token.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/logger"
	"github.com/jz315/autoplay/internal/metrics"
	"github.com/jz315/autoplay/internal/scheduler"
)

// Path is where the bridge is mounted
const Path = "/jsonrpc"

// JSON-RPC error codes for scheduler operations.
const (
	CodeRejected = jrpc2.Code(-32010)
	CodeFailed   = jrpc2.Code(-32011)
)

// Config holds configuration for the JSON-RPC endpoint.
type Config struct {
	Addr   string // listen address, 127.0.0.1 unless exposure is intended
	Secret string // bearer token; empty rejects every request
}

// Server serves the scheduler methods.
type Server struct {
	engine     *scheduler.Engine
	metrics    *metrics.Collector
	onShutdown func()
	logger     logger.Logger

	addr   string
	secret string
	bridge jhttp.Bridge
	server *http.Server
	closed sync.Once
}

// NewServer creates a server for e. onShutdown is called by system.shutdown;
// when nil the method reports a failure.
func NewServer(cfg Config, e *scheduler.Engine, mc *metrics.Collector, onShutdown func(), log logger.Logger) *Server {
	if mc == nil {
		mc = metrics.Default()
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		engine:     e,
		metrics:    mc,
		onShutdown: onShutdown,
		logger:     log.WithComponent(logger.ComponentRPC),
		addr:       cfg.Addr,
		secret:     cfg.Secret,
	}

	methods := handler.Map{
		"schedule.add":     handler.New(s.scheduleAdd),
		"schedule.delete":  handler.New(s.scheduleDelete),
		"schedule.list":    handler.New(s.scheduleList),
		"holiday.set":      handler.New(s.holidaySet),
		"holiday.list":     handler.New(s.holidayList),
		"scheduler.status": handler.New(s.schedulerStatus),
		"scheduler.stats":  handler.New(s.schedulerStats),
		"system.shutdown":  handler.New(s.systemShutdown),
	}

	s.bridge = jhttp.NewBridge(methods, nil)
	return s
}

// Handler returns the authenticated HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, requireToken(s.secret, s.bridge))
	return mux
}

// Start binds the listen address and serves in the background. It returns
// once the listener is open so that bind errors reach the caller.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen on %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("RPC server listening", "address", l.Addr().String())
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("RPC server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and releases the bridge.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.closed.Do(func() { s.bridge.Close() })
	return err
}

func (s *Server) scheduleAdd(ctx context.Context, p *AddParams) (*AddResult, error) {
	ev, err := s.engine.AddEvent(ctx, p.Date, p.Time, p.Media)
	warning, err := s.splitPersistence(err)
	if err != nil {
		return nil, err
	}

	index := 0
	for i, pending := range s.engine.ListEvents() {
		if pending.ID == ev.ID {
			index = i
			break
		}
	}
	return &AddResult{
		Event:   toEventInfo(ev, index, s.engine.Location()),
		Warning: warning,
	}, nil
}

func (s *Server) scheduleDelete(ctx context.Context, p *DeleteParams) (*MutationResult, error) {
	warning, err := s.splitPersistence(s.engine.DeleteEvent(ctx, p.Index))
	if err != nil {
		return nil, err
	}
	return &MutationResult{Warning: warning}, nil
}

func (s *Server) scheduleList(_ context.Context) (*ListResult, error) {
	loc := s.engine.Location()
	events := s.engine.ListEvents()

	res := &ListResult{Events: make([]EventInfo, 0, len(events))}
	for i, ev := range events {
		res.Events = append(res.Events, toEventInfo(ev, i, loc))
	}
	return res, nil
}

func (s *Server) holidaySet(ctx context.Context, p *DateParams) (*MutationResult, error) {
	warning, err := s.splitPersistence(s.engine.SetHoliday(ctx, p.Date))
	if err != nil {
		return nil, err
	}
	return &MutationResult{Warning: warning}, nil
}

func (s *Server) holidayList(_ context.Context, p *YearParams) (*HolidayListResult, error) {
	year := p.Year
	if year == 0 {
		year = time.Now().In(s.engine.Location()).Year()
	}
	if year < 1 || year > 9999 {
		return nil, &jrpc2.Error{Code: CodeRejected, Message: fmt.Sprintf("invalid year %d", p.Year)}
	}

	dates := s.engine.Holidays(year)
	res := &HolidayListResult{Year: year, Dates: make([]string, 0, len(dates))}
	for _, d := range dates {
		res.Dates = append(res.Dates, d.String())
	}
	return res, nil
}

func (s *Server) schedulerStatus(_ context.Context) (*StatusResult, error) {
	return toStatusResult(s.engine.Status(), s.engine.Debug(), s.engine.Location()), nil
}

func (s *Server) schedulerStats(_ context.Context) (*metrics.Metrics, error) {
	m := s.metrics.GetMetrics()
	return &m, nil
}

func (s *Server) systemShutdown(_ context.Context) (*EmptyResult, error) {
	if s.onShutdown == nil {
		return nil, &jrpc2.Error{Code: CodeFailed, Message: "shutdown not supported"}
	}
	s.logger.Info("Shutdown requested over RPC")
	// Respond before the server goes away
	go s.onShutdown()
	return &EmptyResult{}, nil
}

// splitPersistence turns a save failure into a warning, since the mutation
// itself took effect, and maps everything else to an RPC error
func (s *Server) splitPersistence(err error) (string, error) {
	if err == nil {
		return "", nil
	}
	var pe *apperrors.PersistenceError
	if errors.As(err, &pe) {
		s.logger.Warn("Change applied but not saved", "error", err)
		return pe.Error(), nil
	}
	return "", toRPCError(err)
}

func toRPCError(err error) error {
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		data, _ := json.Marshal(RejectionData{Reason: ve.Reason, Detail: ve.Detail})
		return &jrpc2.Error{Code: CodeRejected, Message: ve.Error(), Data: data}
	}
	return &jrpc2.Error{Code: CodeFailed, Message: err.Error()}
}
