package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jz315/autoplay/internal/logger"
)

// Store backends
const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"
)

// DefaultHolidayFeedURL is the public holiday calendar the daemon fetches
// when no holidays are cached for a year
const DefaultHolidayFeedURL = "https://www.shuyz.com/githubfiles/china-holiday-calender/master/holidayAPI.json"

// DefaultUpdateReleaseURL is the GitHub API endpoint of the latest release
const DefaultUpdateReleaseURL = "https://api.github.com/repos/jz315/AutoPlayListening/releases/latest"

// Config holds all configuration for the autoplay daemon and CLI
type Config struct {
	// StateFile is the JSON document holding schedules, holidays and the debug flag
	StateFile string
	// StoreBackend selects where state is persisted: "file" or "redis"
	StoreBackend string
	// RedisURL is the connection URL used when StoreBackend is "redis"
	RedisURL string
	// LockTTL is the lifetime of the Redis instance lock between refreshes
	LockTTL time.Duration

	// HolidayFeedURL is the remote holiday calendar; empty disables fetching
	HolidayFeedURL string
	// HolidayFetchTimeout bounds one feed request
	HolidayFetchTimeout time.Duration
	// HolidayRefreshCron is the cron spec of the holiday refresh job
	HolidayRefreshCron string

	// PlayerCommand is the external player; "{media}" is replaced with the media path
	PlayerCommand string

	// Location is the time zone event times are interpreted in
	Location *time.Location

	// RPCAddr is the listen address of the JSON-RPC endpoint
	RPCAddr string
	// RPCSecret is the bearer token required by the JSON-RPC endpoint
	RPCSecret string

	// UpdateReleaseURL is the latest-release document checked by "autoplay update"
	UpdateReleaseURL string
	// InstallDir receives updates; empty means the executable's directory
	InstallDir string
	// VersionFile records the installed release; relative to InstallDir
	VersionFile string

	// Worker timing
	Worker *WorkerConfig

	// Logging configuration
	Logging *logger.Config
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	worker, err := LoadWorkerConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StateFile:           getEnv("STATE_FILE", "audio_scheduler_data.json"),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", StoreBackendFile)),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		LockTTL:             getEnvAsDuration("LOCK_TTL", 30*time.Second),
		HolidayFeedURL:      getEnvAllowEmpty("HOLIDAY_FEED_URL", DefaultHolidayFeedURL),
		HolidayFetchTimeout: getEnvAsDuration("HOLIDAY_FETCH_TIMEOUT", 10*time.Second),
		HolidayRefreshCron:  getEnv("HOLIDAY_REFRESH_CRON", "@daily"),
		PlayerCommand:       getEnv("PLAYER_COMMAND", "ffplay -nodisp -autoexit -loglevel quiet {media}"),
		RPCAddr:             getEnv("RPC_ADDR", "127.0.0.1:6780"),
		RPCSecret:           getEnv("RPC_SECRET", ""),
		UpdateReleaseURL:    getEnv("UPDATE_RELEASE_URL", DefaultUpdateReleaseURL),
		InstallDir:          getEnv("INSTALL_DIR", ""),
		VersionFile:         getEnv("VERSION_FILE", "version.json"),
		Worker:              worker,
		Logging:             loadLoggingConfig(),
	}

	tz := getEnv("TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}
	cfg.Location = loc

	// Validate required fields
	switch cfg.StoreBackend {
	case StoreBackendFile:
		if cfg.StateFile == "" {
			return nil, fmt.Errorf("STATE_FILE cannot be empty")
		}
	case StoreBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL cannot be empty when STORE_BACKEND=redis")
		}
		if cfg.LockTTL < time.Second {
			return nil, fmt.Errorf("LOCK_TTL must be at least 1s")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND: %s (must be file or redis)", cfg.StoreBackend)
	}
	if cfg.HolidayFetchTimeout <= 0 {
		return nil, fmt.Errorf("HOLIDAY_FETCH_TIMEOUT must be positive")
	}
	if len(strings.Fields(cfg.PlayerCommand)) == 0 {
		return nil, fmt.Errorf("PLAYER_COMMAND cannot be empty")
	}
	if cfg.RPCAddr == "" {
		return nil, fmt.Errorf("RPC_ADDR cannot be empty")
	}

	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv applies a .env file from the working directory when one exists.
// Variables already set in the environment are not overridden.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty is getEnv for keys where an explicit empty value means "off"
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	// Global settings
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(strings.ToLower(level))
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(strings.ToLower(format))
	}

	// Tier 1: Console
	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", 65536)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", 100*time.Millisecond)

	// Tier 2: File (lifecycle log)
	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", true)
	cfg.File.Path = getEnv("LOG_FILE_PATH", "autoplay.log")
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 20)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 3)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 90)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", 1000)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", 50)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", 200*time.Millisecond)

	return cfg
}
