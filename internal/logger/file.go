package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger writes the append-only lifecycle log: one JSON object per line,
// batched in the background and rotated by lumberjack
type FileLogger struct {
	config    *Config
	out       io.WriteCloser
	rotate    func() error
	buffer    chan *LogEntry
	batchBuf  []*LogEntry
	closeChan chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFileLogger creates a file logger writing to config.File.Path
func NewFileLogger(config *Config) (*FileLogger, error) {
	if !config.File.Enabled {
		return nil, fmt.Errorf("file logging is not enabled")
	}

	lumber := &lumberjack.Logger{
		Filename:   config.File.Path,
		MaxSize:    config.File.MaxSizeMB,
		MaxBackups: config.File.MaxBackups,
		MaxAge:     config.File.MaxAgeDays,
		Compress:   config.File.Compress,
	}

	fl := newFileLoggerTo(lumber, config)
	fl.rotate = lumber.Rotate
	return fl, nil
}

func newFileLoggerTo(out io.WriteCloser, config *Config) *FileLogger {
	fl := &FileLogger{
		config:    config,
		out:       out,
		buffer:    make(chan *LogEntry, config.File.BufferSize),
		batchBuf:  make([]*LogEntry, 0, config.File.BatchSize),
		closeChan: make(chan struct{}),
	}

	fl.wg.Add(1)
	go fl.batchWriter()
	return fl
}

func (fl *FileLogger) log(level LogLevel, msg string, component Component, source LogSource, fields map[string]interface{}) {
	entry := &LogEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: component,
		Source:    source,
		Fields:    fields,
	}
	if id, ok := fields["event_id"].(string); ok {
		entry.EventID = id
	}
	if err, ok := fields["error"]; ok {
		entry.Error = fmt.Sprintf("%v", err)
	}

	select {
	case fl.buffer <- entry:
	default:
		// Buffer full, drop rather than stall the caller
	}
}

func (fl *FileLogger) batchWriter() {
	defer fl.wg.Done()

	ticker := time.NewTicker(fl.config.File.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-fl.buffer:
			fl.batchBuf = append(fl.batchBuf, entry)
			if len(fl.batchBuf) >= fl.config.File.BatchSize {
				fl.flush()
			}

		case <-ticker.C:
			fl.flush()

		case <-fl.closeChan:
			for {
				select {
				case entry := <-fl.buffer:
					fl.batchBuf = append(fl.batchBuf, entry)
				default:
					fl.flush()
					return
				}
			}
		}
	}
}

func (fl *FileLogger) flush() {
	if len(fl.batchBuf) == 0 {
		return
	}

	for _, entry := range fl.batchBuf {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = fl.out.Write(append(data, '\n'))
	}

	fl.batchBuf = fl.batchBuf[:0]
}

// Close writes pending entries and closes the file
func (fl *FileLogger) Close() error {
	var err error
	fl.closeOnce.Do(func() {
		close(fl.closeChan)
		fl.wg.Wait()
		if cerr := fl.out.Close(); cerr != nil {
			err = fmt.Errorf("failed to close file logger: %w", cerr)
		}
	})
	return err
}

// Rotate triggers manual log rotation
func (fl *FileLogger) Rotate() error {
	if fl.rotate == nil {
		return nil
	}
	return fl.rotate()
}
