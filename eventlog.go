// eventlog.go: Operational event trail
//
// The event log records data-plane lifecycle: drivers opened and closed,
// contexts started and stopped, parse failures, dropped bytes. Events are
// buffered in memory and flushed to a pluggable backend (SQLite preferred,
// JSONL fallback) on a timer, so logging never sits on the hot path of the
// scheduler loop.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// EventLevel represents the severity of logged events.
type EventLevel int

const (
	EventInfo EventLevel = iota
	EventWarn
	EventError
)

func (l EventLevel) String() string {
	switch l {
	case EventInfo:
		return "INFO"
	case EventWarn:
		return "WARN"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is a single logged occurrence.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       EventLevel     `json:"level"`
	Event       string         `json:"event"`
	ProcessID   int            `json:"process_id"`
	ProcessName string         `json:"process_name"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// EventLogConfig configures the event log.
type EventLogConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	OutputFile    string        `json:"output_file" yaml:"output_file"`
	MinLevel      EventLevel    `json:"min_level" yaml:"min_level"`
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// DefaultEventLogConfig returns the default event log configuration. An
// empty OutputFile selects the shared SQLite database; a .jsonl path selects
// the line-delimited JSON backend instead.
func DefaultEventLogConfig() EventLogConfig {
	return EventLogConfig{
		Enabled:       true,
		OutputFile:    "",
		MinLevel:      EventInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// EventLogger buffers events and flushes them to a backend in batches. A
// nil EventLogger is valid and drops everything, so internal code can log
// unconditionally.
type EventLogger struct {
	config      EventLogConfig
	backend     eventBackend
	buffer      []Event
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	processID   int
	processName string
}

// NewEventLogger creates an event logger with automatic backend selection:
// SQLite when available, JSONL otherwise.
func NewEventLogger(config EventLogConfig) (*EventLogger, error) {
	backend, err := createEventBackend(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event log backend: %w", err)
	}

	logger := &EventLogger{
		config:      config,
		backend:     backend,
		buffer:      make([]Event, 0, config.BufferSize),
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: processName(),
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Log records one event. Cheap enough for per-anomaly use in the scheduler
// loop; the cached timestamp avoids a clock syscall per event.
func (el *EventLogger) Log(level EventLevel, event string, fields map[string]any) {
	if el == nil || el.backend == nil || !el.config.Enabled || level < el.config.MinLevel {
		return
	}

	ev := Event{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		ProcessID:   el.processID,
		ProcessName: el.processName,
		Fields:      fields,
	}

	el.bufferMu.Lock()
	el.buffer = append(el.buffer, ev)
	if len(el.buffer) >= el.config.BufferSize {
		_ = el.flushBufferUnsafe()
	}
	el.bufferMu.Unlock()
}

// Flush immediately writes all buffered events.
func (el *EventLogger) Flush() error {
	if el == nil {
		return nil
	}
	el.bufferMu.Lock()
	defer el.bufferMu.Unlock()
	return el.flushBufferUnsafe()
}

// Stats returns backend statistics, useful for the CLI and monitoring.
func (el *EventLogger) Stats() (*EventLogStats, error) {
	if el == nil || el.backend == nil {
		return &EventLogStats{EventsByLevel: map[string]int64{}}, nil
	}
	return el.backend.GetStats()
}

// Close flushes outstanding events and shuts the logger down.
func (el *EventLogger) Close() error {
	if el == nil {
		return nil
	}
	close(el.stopCh)
	if el.flushTicker != nil {
		el.flushTicker.Stop()
	}

	if err := el.Flush(); err != nil {
		return fmt.Errorf("failed to flush event log during close: %w", err)
	}
	if el.backend != nil {
		if err := el.backend.Close(); err != nil {
			return fmt.Errorf("failed to close event log backend: %w", err)
		}
	}
	return nil
}

// flushLoop runs the background flush process.
func (el *EventLogger) flushLoop() {
	for {
		select {
		case <-el.flushTicker.C:
			_ = el.Flush()
		case <-el.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend. Caller holds bufferMu.
func (el *EventLogger) flushBufferUnsafe() error {
	if len(el.buffer) == 0 {
		return nil
	}
	if err := el.backend.Write(el.buffer); err != nil {
		return fmt.Errorf("failed to write events to backend: %w", err)
	}
	el.buffer = el.buffer[:0]
	return nil
}

func processName() string {
	return "aether" // Could read from /proc/self/comm
}
