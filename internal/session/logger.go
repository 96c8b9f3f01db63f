package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger defines the interface for session event logging.
type Logger interface {
	Log(event Event) error
	Close() error
}

// LoggerOption configures a JSONLogger.
type LoggerOption func(*JSONLogger)

// WithSession stamps every logged event with the given session ID,
// unless the event already carries one.
func WithSession(id string) LoggerOption {
	return func(l *JSONLogger) { l.session = id }
}

// JSONLogger appends events to a file as newline-delimited JSON, one
// event per line so a live log can be tailed mid-session.
type JSONLogger struct {
	mu      sync.Mutex
	file    *os.File
	enc     *json.Encoder
	path    string
	session string
	closed  bool
}

// NewJSONLogger opens (or creates) the log file at path for appending.
// Parent directories are created automatically.
func NewJSONLogger(path string, opts ...LoggerOption) (*JSONLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating session log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}

	l := &JSONLogger{
		file: f,
		enc:  json.NewEncoder(f),
		path: path,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log writes one event as one JSON line, stamping the session ID and a
// timestamp where the event lacks them. Logging after Close reports
// os.ErrClosed.
func (l *JSONLogger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("session log %s: %w", l.path, os.ErrClosed)
	}
	if event.Session == "" {
		event.Session = l.session
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return l.enc.Encode(event)
}

// Close closes the underlying file. Further Log calls fail.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// Path returns the file path of the session log.
func (l *JSONLogger) Path() string {
	return l.path
}

// NopLogger discards all events. It is the default when logging is
// disabled.
type NopLogger struct{}

// Log is a no-op.
func (NopLogger) Log(Event) error { return nil }

// Close is a no-op.
func (NopLogger) Close() error { return nil }

// DefaultLogPath returns a timestamped evolution log path inside dir.
func DefaultLogPath(dir string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	return filepath.Join(dir, fmt.Sprintf("%s-evolution.jsonl", ts))
}
