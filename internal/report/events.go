package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventRun         EventType = "run"
	EventDiscover    EventType = "discover"
	EventLoad        EventType = "load"
	EventSkip        EventType = "skip"
	EventResolveMiss EventType = "resolve_miss"
	EventError       EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is a single line of the event log
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	RunID     string            `json:"run_id,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Path      string            `json:"path,omitempty"`
	Records   int               `json:"records,omitempty"`
	Songplays int               `json:"songplays,omitempty"`
	Resolved  int               `json:"resolved,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
	runID    string
}

// NewEventLogger creates a new event logger with a minimum log level.
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug).
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// SetRunID stamps every subsequent event with the run identifier
func (l *EventLogger) SetRunID(runID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = runID
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// LogDiscover logs the result of walking a data directory
func (l *EventLogger) LogDiscover(kind, root string, files int) error {
	return l.Log(&Event{
		Level:   LevelInfo,
		Event:   EventDiscover,
		Kind:    kind,
		Path:    root,
		Records: files,
	})
}

// LogLoad logs one processed file; a non-nil err marks it failed
func (l *EventLogger) LogLoad(kind, path string, records, songplays, resolved int, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:     level,
		Event:     EventLoad,
		Kind:      kind,
		Path:      path,
		Records:   records,
		Songplays: songplays,
		Resolved:  resolved,
		Duration:  duration.Milliseconds(),
		Error:     errMsg,
	})
}

// LogSkip logs a file that was not processed
func (l *EventLogger) LogSkip(kind, path, reason string) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventSkip,
		Kind:   kind,
		Path:   path,
		Reason: reason,
	})
}

// LogResolveMiss logs a playback that matched no known song
func (l *EventLogger) LogResolveMiss(path, song, artist string, length float64) error {
	return l.Log(&Event{
		Level: LevelDebug,
		Event: EventResolveMiss,
		Path:  path,
		Extra: map[string]string{
			"song":   song,
			"artist": artist,
			"length": fmt.Sprintf("%g", length),
		},
	})
}

// LogRun logs the end of a run
func (l *EventLogger) LogRun(loaded, failed, skipped int, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventRun,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
		Extra: map[string]string{
			"loaded":  fmt.Sprintf("%d", loaded),
			"failed":  fmt.Sprintf("%d", failed),
			"skipped": fmt.Sprintf("%d", skipped),
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Path:  path,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
