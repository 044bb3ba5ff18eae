package config

import (
	"fmt"
	"time"
)

// WorkerConfig holds the timing knobs of the scheduler worker
type WorkerConfig struct {
	// PollInterval is how often a playing port is checked when it cannot
	// signal completion itself
	// Default: 1 second
	PollInterval time.Duration

	// MaxWait caps a single sleep towards the head event. The worker wakes,
	// re-reads the clock and sleeps again, so wall-clock jumps and system
	// suspend are noticed within MaxWait.
	// Default: 60 seconds
	MaxWait time.Duration

	// MaxPlayback bounds one playback. When it elapses the player is stopped
	// and the event retired. Zero disables the bound.
	// Default: 3 hours
	MaxPlayback time.Duration

	// PanicBackoff is the pause after a recovered panic in the worker loop
	// Default: 1 second
	PanicBackoff time.Duration
}

// DefaultWorkerConfig returns the worker timings used when nothing is configured
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		PollInterval: time.Second,
		MaxWait:      60 * time.Second,
		MaxPlayback:  3 * time.Hour,
		PanicBackoff: time.Second,
	}
}

// LoadWorkerConfig loads worker configuration from environment variables
func LoadWorkerConfig() (*WorkerConfig, error) {
	def := DefaultWorkerConfig()
	cfg := &WorkerConfig{
		PollInterval: getEnvAsDuration("POLL_INTERVAL", def.PollInterval),
		MaxWait:      getEnvAsDuration("MAX_WAIT", def.MaxWait),
		MaxPlayback:  getEnvAsDuration("MAX_PLAYBACK", def.MaxPlayback),
		PanicBackoff: getEnvAsDuration("PANIC_BACKOFF", def.PanicBackoff),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the worker configuration is valid
func (c *WorkerConfig) Validate() error {
	if c.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("poll interval too short: %v (minimum 10ms)", c.PollInterval)
	}
	if c.PollInterval > time.Minute {
		return fmt.Errorf("poll interval too long: %v (maximum 1 minute)", c.PollInterval)
	}
	if c.MaxWait < c.PollInterval {
		return fmt.Errorf("max wait %v must not be shorter than poll interval %v", c.MaxWait, c.PollInterval)
	}
	if c.MaxPlayback < 0 {
		return fmt.Errorf("max playback cannot be negative")
	}
	if c.PanicBackoff < 0 {
		return fmt.Errorf("panic backoff cannot be negative")
	}
	return nil
}

// String returns a human-readable description of the worker config
func (c *WorkerConfig) String() string {
	playback := "unbounded"
	if c.MaxPlayback > 0 {
		playback = c.MaxPlayback.String()
	}
	return fmt.Sprintf(
		"WorkerConfig{poll=%v, maxWait=%v, maxPlayback=%s}",
		c.PollInterval, c.MaxWait, playback,
	)
}
