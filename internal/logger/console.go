package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ConsoleLogger writes log lines to stdout through a log/slog handler.
// Writes are handed to a buffered writer and drained in the background.
type ConsoleLogger struct {
	handler slog.Handler
	writer  *bufferedWriter
}

// bufferedWriter provides async buffered writing with periodic flushing
type bufferedWriter struct {
	writer    io.Writer
	buffer    chan []byte
	interval  time.Duration
	closeChan chan struct{}
	done      chan struct{}
	mu        sync.Mutex
	closed    bool
}

func newBufferedWriter(w io.Writer, bufferSize int, flushInterval time.Duration) *bufferedWriter {
	slots := bufferSize / 256 // approximate number of log lines
	if slots < 1 {
		slots = 1
	}
	bw := &bufferedWriter{
		writer:    w,
		buffer:    make(chan []byte, slots),
		interval:  flushInterval,
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go bw.flusher()
	return bw
}

// Write implements io.Writer
func (bw *bufferedWriter) Write(p []byte) (int, error) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return 0, fmt.Errorf("writer is closed")
	}

	// slog reuses its buffer
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case bw.buffer <- buf:
		return len(p), nil
	default:
		// Buffer full, write through
		return bw.writer.Write(p)
	}
}

func (bw *bufferedWriter) flusher() {
	defer close(bw.done)

	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case buf := <-bw.buffer:
			_, _ = bw.writer.Write(buf)
		case <-ticker.C:
			bw.drain()
		case <-bw.closeChan:
			bw.drain()
			return
		}
	}
}

func (bw *bufferedWriter) drain() {
	for {
		select {
		case buf := <-bw.buffer:
			_, _ = bw.writer.Write(buf)
		default:
			return
		}
	}
}

// Close stops the flusher after writing everything still buffered
func (bw *bufferedWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return nil
	}
	bw.closed = true
	bw.mu.Unlock()

	close(bw.closeChan)
	<-bw.done
	return nil
}

// NewConsoleLogger creates a console logger writing to stdout
func NewConsoleLogger(config *Config) (*ConsoleLogger, error) {
	level := new(slog.LevelVar)
	level.Set(slogLevel(config.Level))
	return newConsoleLogger(config, level)
}

func newConsoleLogger(config *Config, level slog.Leveler) (*ConsoleLogger, error) {
	return newConsoleLoggerTo(os.Stdout, config, level), nil
}

func newConsoleLoggerTo(w io.Writer, config *Config, level slog.Leveler) *ConsoleLogger {
	cl := &ConsoleLogger{
		writer: newBufferedWriter(w, config.Console.BufferSize, config.Console.FlushInterval),
	}

	opts := &slog.HandlerOptions{Level: level}
	switch {
	case config.Format == FormatJSON:
		cl.handler = slog.NewJSONHandler(cl.writer, opts)
	case config.Console.Color:
		cl.handler = newColorTextHandler(cl.writer, opts)
	default:
		cl.handler = slog.NewTextHandler(cl.writer, opts)
	}
	return cl
}

func (cl *ConsoleLogger) log(level LogLevel, msg string, component Component, source LogSource, fields map[string]interface{}) {
	if !cl.handler.Enabled(context.Background(), slogLevel(level)) {
		return
	}
	record := slog.NewRecord(time.Now(), slogLevel(level), msg, 0)

	if component != "" {
		record.AddAttrs(slog.String("component", string(component)))
	}
	if source != "" {
		record.AddAttrs(slog.String("log_source", string(source)))
	}

	// Sorted so text output is stable line to line
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		record.AddAttrs(slog.Any(k, fields[k]))
	}

	_ = cl.handler.Handle(context.Background(), record)
}

// Close flushes and closes the console logger
func (cl *ConsoleLogger) Close() error {
	return cl.writer.Close()
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// colorTextHandler renders "time LEVEL [component] msg key=value ..." with
// the level colored by severity
type colorTextHandler struct {
	w    io.Writer
	opts *slog.HandlerOptions
	mu   sync.Mutex

	debugColor *color.Color
	infoColor  *color.Color
	warnColor  *color.Color
	errorColor *color.Color
	keyColor   *color.Color
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	return &colorTextHandler{
		w:          w,
		opts:       opts,
		debugColor: color.New(color.FgCyan),
		infoColor:  color.New(color.FgGreen),
		warnColor:  color.New(color.FgYellow),
		errorColor: color.New(color.FgRed, color.Bold),
		keyColor:   color.New(color.Faint),
	}
}

// Enabled implements slog.Handler
func (h *colorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts != nil && h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle implements slog.Handler
func (h *colorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var levelStr string
	switch {
	case r.Level >= slog.LevelError:
		levelStr = h.errorColor.Sprint("ERROR")
	case r.Level >= slog.LevelWarn:
		levelStr = h.warnColor.Sprint("WARN ")
	case r.Level >= slog.LevelInfo:
		levelStr = h.infoColor.Sprint("INFO ")
	default:
		levelStr = h.debugColor.Sprint("DEBUG")
	}

	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(levelStr)

	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			fmt.Fprintf(&b, " [%s]", a.Value.String())
			return true
		}
		attrs = append(attrs, a)
		return true
	})

	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range attrs {
		fmt.Fprintf(&b, " %s=%v", h.keyColor.Sprint(a.Key), a.Value.Any())
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs implements slog.Handler. Attributes are passed per record, so
// handler-level attributes are not needed.
func (h *colorTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

// WithGroup implements slog.Handler
func (h *colorTextHandler) WithGroup(_ string) slog.Handler {
	return h
}
