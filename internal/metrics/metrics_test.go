package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}

	m := c.GetMetrics()
	if m.EventsAdded != 0 || m.PlaybacksStarted != 0 || m.QueueDepth != 0 {
		t.Errorf("Expected zeroed metrics, got %+v", m)
	}
	if m.EventsRejected == nil {
		t.Error("Expected non-nil rejection map")
	}
}

func TestRecordEvents(t *testing.T) {
	c := NewCollector()

	c.RecordEventAdded()
	c.RecordEventAdded()
	c.RecordEventRejected("holiday")
	c.RecordEventRejected("not future")
	c.RecordEventRejected("holiday")
	c.RecordEventDeleted()
	c.RecordQueueDepth(1)

	m := c.GetMetrics()
	if m.EventsAdded != 2 {
		t.Errorf("Expected EventsAdded = 2, got %d", m.EventsAdded)
	}
	if m.EventsRejected["holiday"] != 2 {
		t.Errorf("Expected 2 holiday rejections, got %d", m.EventsRejected["holiday"])
	}
	if m.EventsRejected["not future"] != 1 {
		t.Errorf("Expected 1 not-future rejection, got %d", m.EventsRejected["not future"])
	}
	if m.EventsDeleted != 1 {
		t.Errorf("Expected EventsDeleted = 1, got %d", m.EventsDeleted)
	}
	if m.QueueDepth != 1 {
		t.Errorf("Expected QueueDepth = 1, got %d", m.QueueDepth)
	}
}

func TestRecordPlayback(t *testing.T) {
	c := NewCollector()

	c.RecordPlaybackStarted()
	c.RecordPlaybackCompleted(100 * time.Millisecond)
	c.RecordPlaybackStarted()
	c.RecordPlaybackStopped(300 * time.Millisecond)
	c.RecordPlaybackFailed()
	c.RecordPlaybackFailed()

	m := c.GetMetrics()
	if m.PlaybacksCompleted != 1 || m.PlaybacksStopped != 1 || m.PlaybacksFailed != 2 {
		t.Errorf("Unexpected playback counters %+v", m)
	}
	if m.AvgPlayback != 200*time.Millisecond {
		t.Errorf("Expected AvgPlayback = 200ms, got %v", m.AvgPlayback)
	}
	if m.FailureRate != 50 {
		t.Errorf("Expected FailureRate = 50, got %f", m.FailureRate)
	}
	if m.LastPlayback.IsZero() {
		t.Error("Expected LastPlayback to be set")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	c := NewCollector()
	c.RecordEventRejected("holiday")

	m := c.GetMetrics()
	m.EventsRejected["holiday"] = 99

	if c.GetMetrics().EventsRejected["holiday"] != 1 {
		t.Error("Modifying a snapshot changed the collector")
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.RecordEventAdded()
	c.RecordWakeup()
	c.RecordPanic()
	c.RecordPersistenceError()
	c.RecordHolidayFetchError()
	c.RecordEventRejected("holiday")

	c.Reset()

	m := c.GetMetrics()
	if m.EventsAdded != 0 || m.Wakeups != 0 || m.Panics != 0 || m.PersistenceErrors != 0 || m.HolidayFetchErrors != 0 {
		t.Errorf("Expected zeroed counters after Reset, got %+v", m)
	}
	if len(m.EventsRejected) != 0 {
		t.Errorf("Expected empty rejection map after Reset, got %v", m.EventsRejected)
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordWakeup()
			c.RecordEventRejected("holiday")
			c.RecordQueueDepth(3)
		}()
	}
	wg.Wait()

	m := c.GetMetrics()
	if m.Wakeups != 50 || m.EventsRejected["holiday"] != 50 {
		t.Errorf("Expected 50 of each, got %+v", m)
	}
}

func TestGlobalCollector(t *testing.T) {
	ResetMetrics()
	Default().RecordEventAdded()

	if GetMetrics().EventsAdded != 1 {
		t.Error("Expected global collector to record")
	}
	ResetMetrics()
}
