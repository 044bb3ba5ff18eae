package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a goroutine-safe bytes.Buffer that satisfies io.WriteCloser
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Close() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.File.Path = filepath.Join(t.TempDir(), "autoplay.log")
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level to be info, got %s", cfg.Level)
	}

	if cfg.Format != FormatText {
		t.Errorf("expected default format to be text, got %s", cfg.Format)
	}

	if !cfg.Console.Enabled {
		t.Error("expected console to be enabled by default")
	}

	if !cfg.File.Enabled {
		t.Error("expected the lifecycle log file to be enabled by default")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "invalid log level",
			config: &Config{
				Level:  "invalid",
				Format: FormatJSON,
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			config: &Config{
				Level:  LevelInfo,
				Format: "invalid",
			},
			wantErr: true,
		},
		{
			name: "file enabled without path",
			config: &Config{
				Level:  LevelInfo,
				Format: FormatJSON,
				File: FileConfig{
					Enabled:   true,
					Path:      "",
					MaxSizeMB: 1,
				},
			},
			wantErr: true,
		},
		{
			name: "file enabled without batch size",
			config: &Config{
				Level:  LevelInfo,
				Format: FormatJSON,
				File: FileConfig{
					Enabled:       true,
					Path:          "x.log",
					MaxSizeMB:     1,
					BufferSize:    10,
					BatchInterval: time.Second,
				},
			},
			wantErr: true,
		},
		{
			name: "console without flush interval",
			config: &Config{
				Level:   LevelInfo,
				Format:  FormatText,
				Console: ConsoleConfig{Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMultiLogger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Format = FormatJSON

	ml, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer ml.Close()

	// Test basic logging (should not panic)
	ml.Info("test message", "key", "value")
	ml.Debug("debug message")
	ml.Warn("warning message")
	ml.Error("error message")
}

func TestLoggerWithComponentAndSource(t *testing.T) {
	cfg := testConfig(t)

	ml, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer ml.Close()

	logger := ml.WithComponent(ComponentWorker).WithSource(LogSourcePlayback)
	logger.Info("playback started", "media", "a.mp3")
}

func TestLogLevelFiltering(t *testing.T) {
	cfg := testConfig(t)
	cfg.Level = LevelWarn

	ml, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer ml.Close()

	if ml.Enabled(LevelInfo) {
		t.Error("info should be filtered at warn level")
	}
	if !ml.Enabled(LevelError) {
		t.Error("error should pass at warn level")
	}
}

func TestSetLevel_SharedWithChildren(t *testing.T) {
	cfg := testConfig(t)

	ml, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer ml.Close()

	child := ml.WithComponent(ComponentScheduler).(*MultiLogger)
	if child.Enabled(LevelDebug) {
		t.Fatal("debug should be off at info level")
	}

	ml.SetLevel(LevelDebug)

	if !child.Enabled(LevelDebug) {
		t.Error("expected SetLevel on the root to reach derived loggers")
	}
}

func TestConsoleLogger_Text(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Console.Color = false
	out := &syncBuffer{}

	level := new(slog.LevelVar)
	cl := newConsoleLoggerTo(out, cfg, level)
	cl.log(LevelInfo, "event added", ComponentScheduler, LogSourceInternal, map[string]interface{}{
		"event": "2024-10-01 09:00 - a.mp3",
	})
	cl.log(LevelDebug, "hidden", ComponentScheduler, "", nil)
	if err := cl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "event added") || !strings.Contains(got, "component=scheduler") {
		t.Errorf("unexpected console output: %q", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("debug line should have been filtered: %q", got)
	}
}

func TestConsoleLogger_Color(t *testing.T) {
	cfg := DefaultConfig()
	out := &syncBuffer{}

	cl := newConsoleLoggerTo(out, cfg, slog.LevelDebug)
	cl.log(LevelWarn, "holiday fetch failed", ComponentHoliday, "", map[string]interface{}{"year": 2024})
	_ = cl.Close()

	got := out.String()
	if !strings.Contains(got, "[holiday]") || !strings.Contains(got, "holiday fetch failed") {
		t.Errorf("unexpected color output: %q", got)
	}
}

func TestFileLogger_WritesJSONLines(t *testing.T) {
	cfg := DefaultConfig()
	out := &syncBuffer{}

	fl := newFileLoggerTo(out, cfg)
	fl.log(LevelInfo, "playback finished", ComponentWorker, LogSourcePlayback, map[string]interface{}{
		"event_id": "ev-1",
		"error":    "boom",
	})
	fl.log(LevelInfo, "second", ComponentWorker, "", nil)
	if err := fl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out.String())
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry.EventID != "ev-1" {
		t.Errorf("EventID = %q, want ev-1", entry.EventID)
	}
	if entry.Error != "boom" {
		t.Errorf("Error = %q, want boom", entry.Error)
	}
	if entry.Source != LogSourcePlayback {
		t.Errorf("Source = %q", entry.Source)
	}
}

func TestLoggerContext_EventID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Console.Enabled = false
	cfg.File.Enabled = false
	out := &syncBuffer{}

	ml, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	fl := newFileLoggerTo(out, DefaultConfig())
	ml.sinks = append(ml.sinks, fl)

	ctx := WithEventID(context.Background(), "ev-42")
	ml.InfoContext(ctx, "retired")
	_ = ml.Close()

	if !strings.Contains(out.String(), `"event_id":"ev-42"`) {
		t.Errorf("expected event_id in output, got %q", out.String())
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := &NoOpLogger{}

	// All operations should be no-op (no panic)
	logger.Debug("test")
	logger.Info("test")
	logger.Warn("test")
	logger.Error("test")

	logger.DebugContext(context.Background(), "test")
	logger.InfoContext(context.Background(), "test")
	logger.WarnContext(context.Background(), "test")
	logger.ErrorContext(context.Background(), "test")

	_ = logger.WithFields(map[string]interface{}{"key": "value"})
	_ = logger.WithComponent(ComponentWorker)
	_ = logger.WithSource(LogSourceInternal)

	if err := logger.Close(); err != nil {
		t.Errorf("NoOpLogger.Close() should not error, got %v", err)
	}
}

func TestGlobalLogger(t *testing.T) {
	cfg := testConfig(t)
	ml, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer ml.Close()

	SetDefault(ml)
	defer SetDefault(&NoOpLogger{})

	if Default() == nil {
		t.Error("Default() returned nil")
	}

	Info("test info")
	Debug("test debug")
	Warn("test warn")
	Error("test error")
}

func BenchmarkMultiLoggerInfo(b *testing.B) {
	cfg := DefaultConfig()
	cfg.File.Path = filepath.Join(b.TempDir(), "bench.log")
	ml, _ := NewLogger(cfg)
	defer ml.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ml.Info("benchmark test", "iteration", i)
	}
}

func BenchmarkLogLevelFiltered(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Level = LevelError
	cfg.File.Path = filepath.Join(b.TempDir(), "bench.log")

	ml, _ := NewLogger(cfg)
	defer ml.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ml.Info("this should be filtered", "iteration", i)
	}
}
