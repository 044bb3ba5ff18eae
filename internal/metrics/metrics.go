package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector instance
var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks scheduler metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	eventsAdded        atomic.Int64
	eventsDeleted      atomic.Int64
	playbacksStarted   atomic.Int64
	playbacksCompleted atomic.Int64
	playbacksFailed    atomic.Int64
	playbacksStopped   atomic.Int64
	wakeups            atomic.Int64
	panics             atomic.Int64
	persistenceErrors  atomic.Int64
	holidayFetchErrors atomic.Int64

	// Protected by mutex
	mu               sync.RWMutex
	rejectedByReason map[string]int64
	queueDepth       int64
	totalPlayback    time.Duration
	playbackCount    int64
	lastPlayback     time.Time
	startTime        time.Time
}

// Metrics represents a snapshot of current scheduler metrics
type Metrics struct {
	EventsAdded        int64            `json:"events_added"`
	EventsRejected     map[string]int64 `json:"events_rejected"`
	EventsDeleted      int64            `json:"events_deleted"`
	PlaybacksStarted   int64            `json:"playbacks_started"`
	PlaybacksCompleted int64            `json:"playbacks_completed"`
	PlaybacksFailed    int64            `json:"playbacks_failed"`
	PlaybacksStopped   int64            `json:"playbacks_stopped"`
	Wakeups            int64            `json:"wakeups"`
	Panics             int64            `json:"panics"`
	PersistenceErrors  int64            `json:"persistence_errors"`
	HolidayFetchErrors int64            `json:"holiday_fetch_errors"`
	QueueDepth         int64            `json:"queue_depth"`
	AvgPlayback        time.Duration    `json:"avg_playback"`
	FailureRate        float64          `json:"failure_rate"`
	LastPlayback       time.Time        `json:"last_playback"`
	Uptime             time.Duration    `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		rejectedByReason: make(map[string]int64),
		startTime:        time.Now(),
	}
}

// RecordEventAdded counts an accepted event
func (c *Collector) RecordEventAdded() {
	c.eventsAdded.Add(1)
}

// RecordEventRejected counts a rejected add by validation reason
func (c *Collector) RecordEventRejected(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectedByReason[reason]++
}

// RecordEventDeleted counts a user deletion
func (c *Collector) RecordEventDeleted() {
	c.eventsDeleted.Add(1)
}

// RecordPlaybackStarted counts a playback the port accepted
func (c *Collector) RecordPlaybackStarted() {
	c.playbacksStarted.Add(1)
}

// RecordPlaybackCompleted records a playback that ran to its end
func (c *Collector) RecordPlaybackCompleted(duration time.Duration) {
	c.playbacksCompleted.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalPlayback += duration
	c.playbackCount++
	c.lastPlayback = time.Now()
}

// RecordPlaybackFailed records a playback the port refused to start
func (c *Collector) RecordPlaybackFailed() {
	c.playbacksFailed.Add(1)
}

// RecordPlaybackStopped records a playback cut off at the playback bound
func (c *Collector) RecordPlaybackStopped(duration time.Duration) {
	c.playbacksStopped.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalPlayback += duration
	c.playbackCount++
	c.lastPlayback = time.Now()
}

// RecordWakeup counts a wake signal delivered to the worker
func (c *Collector) RecordWakeup() {
	c.wakeups.Add(1)
}

// RecordPanic counts a recovered worker panic
func (c *Collector) RecordPanic() {
	c.panics.Add(1)
}

// RecordPersistenceError counts a failed state save
func (c *Collector) RecordPersistenceError() {
	c.persistenceErrors.Add(1)
}

// RecordHolidayFetchError counts a failed holiday feed fetch
func (c *Collector) RecordHolidayFetchError() {
	c.holidayFetchErrors.Add(1)
}

// RecordQueueDepth updates the number of pending events
func (c *Collector) RecordQueueDepth(depth int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepth = depth
}

// GetMetrics returns a snapshot of current metrics
func (c *Collector) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rejected := make(map[string]int64, len(c.rejectedByReason))
	for k, v := range c.rejectedByReason {
		rejected[k] = v
	}

	var avg time.Duration
	if c.playbackCount > 0 {
		avg = c.totalPlayback / time.Duration(c.playbackCount)
	}

	started := c.playbacksStarted.Load()
	failed := c.playbacksFailed.Load()
	var failureRate float64
	if attempts := started + failed; attempts > 0 {
		failureRate = float64(failed) / float64(attempts) * 100
	}

	return Metrics{
		EventsAdded:        c.eventsAdded.Load(),
		EventsRejected:     rejected,
		EventsDeleted:      c.eventsDeleted.Load(),
		PlaybacksStarted:   started,
		PlaybacksCompleted: c.playbacksCompleted.Load(),
		PlaybacksFailed:    failed,
		PlaybacksStopped:   c.playbacksStopped.Load(),
		Wakeups:            c.wakeups.Load(),
		Panics:             c.panics.Load(),
		PersistenceErrors:  c.persistenceErrors.Load(),
		HolidayFetchErrors: c.holidayFetchErrors.Load(),
		QueueDepth:         c.queueDepth,
		AvgPlayback:        avg,
		FailureRate:        failureRate,
		LastPlayback:       c.lastPlayback,
		Uptime:             time.Since(c.startTime),
	}
}

// Reset clears all metrics (useful for testing)
func (c *Collector) Reset() {
	c.eventsAdded.Store(0)
	c.eventsDeleted.Store(0)
	c.playbacksStarted.Store(0)
	c.playbacksCompleted.Store(0)
	c.playbacksFailed.Store(0)
	c.playbacksStopped.Store(0)
	c.wakeups.Store(0)
	c.panics.Store(0)
	c.persistenceErrors.Store(0)
	c.holidayFetchErrors.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectedByReason = make(map[string]int64)
	c.queueDepth = 0
	c.totalPlayback = 0
	c.playbackCount = 0
	c.lastPlayback = time.Time{}
	c.startTime = time.Now()
}

// GetMetrics returns metrics from the global collector
func GetMetrics() Metrics {
	return Default().GetMetrics()
}

// ResetMetrics resets the global collector
func ResetMetrics() {
	Default().Reset()
}
