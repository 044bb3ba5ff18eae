package logger

import (
	"fmt"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format for console logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// LogSource distinguishes engine bookkeeping from playback activity
type LogSource string

const (
	LogSourceInternal LogSource = "autoplay_internal"
	LogSourcePlayback LogSource = "autoplay_playback"
)

// Component identifies which part of the system generated the log
type Component string

const (
	ComponentRPC       Component = "rpc"
	ComponentScheduler Component = "scheduler"
	ComponentWorker    Component = "worker"
	ComponentStore     Component = "store"
	ComponentHoliday   Component = "holiday"
	ComponentPlayback  Component = "playback"
	ComponentCLI       Component = "cli"
	ComponentUpdater   Component = "updater"
)

// Config holds the logging configuration for both tiers
type Config struct {
	Level  LogLevel  `json:"level"`
	Format LogFormat `json:"format"`

	// Tier 1: console
	Console ConsoleConfig `json:"console"`

	// Tier 2: rotating file, the append-only lifecycle log
	File FileConfig `json:"file"`
}

// ConsoleConfig configures terminal logging
type ConsoleConfig struct {
	Enabled       bool          `json:"enabled"`
	Color         bool          `json:"color"`          // colored output (text format only)
	BufferSize    int           `json:"buffer_size"`    // async buffer size in bytes
	FlushInterval time.Duration `json:"flush_interval"` // how often the buffer is drained
}

// FileConfig configures the rotating JSON-lines log file
type FileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`

	BufferSize    int           `json:"buffer_size"`    // pending entries before new ones are dropped
	BatchSize     int           `json:"batch_size"`     // entries per write
	BatchInterval time.Duration `json:"batch_interval"` // max delay before a partial batch is written
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatText,
		Console: ConsoleConfig{
			Enabled:       true,
			Color:         true,
			BufferSize:    65536,
			FlushInterval: 100 * time.Millisecond,
		},
		File: FileConfig{
			Enabled:       true,
			Path:          "autoplay.log",
			MaxSizeMB:     20,
			MaxBackups:    3,
			MaxAgeDays:    90,
			Compress:      true,
			BufferSize:    1000,
			BatchSize:     50,
			BatchInterval: 200 * time.Millisecond,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	switch c.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	if c.File.Enabled {
		if c.File.Path == "" {
			return fmt.Errorf("file logging enabled but path is empty")
		}
		if c.File.MaxSizeMB <= 0 {
			return fmt.Errorf("file max size must be > 0")
		}
		if c.File.BatchSize <= 0 || c.File.BufferSize <= 0 {
			return fmt.Errorf("file buffer and batch sizes must be > 0")
		}
		if c.File.BatchInterval <= 0 {
			return fmt.Errorf("file batch interval must be > 0")
		}
	}

	if c.Console.Enabled && c.Console.FlushInterval <= 0 {
		return fmt.Errorf("console flush interval must be > 0")
	}

	return nil
}
