package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jz315/autoplay/internal/config"
	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/holiday"
	"github.com/jz315/autoplay/internal/logger"
	"github.com/jz315/autoplay/internal/metrics"
	"github.com/jz315/autoplay/internal/playback"
	"github.com/jz315/autoplay/internal/queue"
	"github.com/jz315/autoplay/internal/store"
)

var utc8 = time.FixedZone("CST", 8*3600)

// base is 2024-09-30 12:00 local
var base = time.Date(2024, time.September, 30, 12, 0, 0, 0, utc8)

// testClock runs at real speed from an adjustable starting point, so the
// worker's real timers line up with the times it reads
type testClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func newTestClock(at time.Time) *testClock {
	c := &testClock{}
	c.Set(at)
	return c
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *testClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = time.Until(at)
}

// memStore is an in-memory store.Store
type memStore struct {
	mu    sync.Mutex
	state *store.State
	fail  error
}

func (m *memStore) Load(ctx context.Context) (*store.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, &apperrors.PersistenceError{Op: "load", Err: m.fail}
	}
	if m.state == nil {
		return store.NewState(), nil
	}
	return m.state.Clone(), nil
}

func (m *memStore) Save(ctx context.Context, s *store.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return &apperrors.PersistenceError{Op: "save", Err: m.fail}
	}
	m.state = s.Clone()
	return nil
}

func (m *memStore) scheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return 0
	}
	return len(m.state.Schedules)
}

// fakePort plays nothing; the test decides when playback ends
type fakePort struct {
	mu       sync.Mutex
	playing  bool
	started  []string
	stops    int
	overlap  bool
	startErr error
	panics   int
	onStart  func(media string)
}

func (p *fakePort) Start(ctx context.Context, media string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panics > 0 {
		p.panics--
		panic("player exploded")
	}
	if p.startErr != nil {
		return &apperrors.PlaybackError{MediaRef: media, Err: p.startErr}
	}
	if p.playing {
		p.overlap = true
	}
	p.playing = true
	p.started = append(p.started, media)
	if p.onStart != nil {
		p.onStart(media)
	}
	return nil
}

func (p *fakePort) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePort) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.playing = false
	return nil
}

func (p *fakePort) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *fakePort) startedMedia() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

func (p *fakePort) overlapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlap
}

// notifyPort is a fakePort that also signals completion
type notifyPort struct {
	fakePort
	done chan struct{}
}

func newNotifyPort() *notifyPort {
	done := make(chan struct{})
	close(done)
	return &notifyPort{done: done}
}

func (p *notifyPort) Start(ctx context.Context, media string) error {
	if err := p.fakePort.Start(ctx, media); err != nil {
		return err
	}
	p.mu.Lock()
	p.done = make(chan struct{})
	p.mu.Unlock()
	return nil
}

func (p *notifyPort) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *notifyPort) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.playing = false
		close(p.done)
	}
}

func (p *notifyPort) Stop() error {
	p.finish()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

var _ playback.Notifier = (*notifyPort)(nil)

// fakeProvider serves canned holiday sets
type fakeProvider struct {
	mu    sync.Mutex
	sets  map[int]holiday.Set
	err   error
	calls int
}

func (f *fakeProvider) Resolve(ctx context.Context, year int, cached holiday.Set) (holiday.Set, error) {
	if len(cached) > 0 {
		return cached, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, &apperrors.HolidayFetchError{Year: year, Err: f.err}
	}
	out := holiday.NewSet()
	out.Union(f.sets[year])
	return out, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEngine struct {
	*Engine
	store   *memStore
	port    playback.Port
	clock   *testClock
	metrics *metrics.Collector
}

func testWorkerConfig() *config.WorkerConfig {
	return &config.WorkerConfig{
		PollInterval: 10 * time.Millisecond,
		MaxWait:      200 * time.Millisecond,
		MaxPlayback:  0,
		PanicBackoff: 10 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, port playback.Port, provider holiday.Provider, wc *config.WorkerConfig) *testEngine {
	t.Helper()
	if port == nil {
		port = &fakePort{}
	}
	if provider == nil {
		provider = &fakeProvider{}
	}
	if wc == nil {
		wc = testWorkerConfig()
	}

	ms := &memStore{}
	clock := newTestClock(base)
	mc := metrics.NewCollector()
	log := &logger.NoOpLogger{}

	e, err := New(Options{
		Queue:    queue.New(ms, utc8, log),
		Holidays: provider,
		Player:   port,
		Worker:   wc,
		Metrics:  mc,
		Logger:   log,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEngine{Engine: e, store: ms, port: port, clock: clock, metrics: mc}
}

func (te *testEngine) start(t *testing.T) {
	t.Helper()
	if err := te.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = te.Shutdown(ctx)
	})
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...interface{}) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: "+format, args...)
}

func validationReason(err error) string {
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

// waitingOn reports whether the worker is waiting on the event with id
func (te *testEngine) waitingOn(id string) bool {
	st := te.Status()
	return st.State == StateWaiting && st.Target != nil && st.Target.ID == id
}

func (te *testEngine) inState(s WorkerState) bool {
	return te.Status().State == s
}
