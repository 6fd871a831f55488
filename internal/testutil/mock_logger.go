// Package testutil holds test doubles shared across packages.
package testutil

import (
	"context"
	"sync"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
)

// MockLogger implements logging.Logger and records every entry.  Children
// returned by With, Named and friends write into the same record.
type MockLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
	fields   []logging.Field
	root     *MockLogger
}

// LogMessage is one captured entry.
type LogMessage struct {
	Level   string
	Message string
	Fields  []logging.Field
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{Messages: make([]LogMessage, 0)}
}

func (m *MockLogger) target() *MockLogger {
	if m.root != nil {
		return m.root
	}
	return m
}

func (m *MockLogger) child(extra ...logging.Field) *MockLogger {
	fields := append(append([]logging.Field(nil), m.fields...), extra...)
	return &MockLogger{fields: fields, root: m.target()}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	t := m.target()
	t.mu.Lock()
	defer t.mu.Unlock()
	all := append(append([]logging.Field(nil), m.fields...), fields...)
	t.Messages = append(t.Messages, LogMessage{Level: level, Message: msg, Fields: all})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

func (m *MockLogger) With(fields ...logging.Field) logging.Logger { return m.child(fields...) }

func (m *MockLogger) WithContext(ctx context.Context) logging.Logger {
	var extra []logging.Field
	if id := logging.RequestIDFrom(ctx); id != "" {
		extra = append(extra, logging.String("request_id", id))
	}
	if id := logging.JobIDFrom(ctx); id != "" {
		extra = append(extra, logging.String("job_id", id))
	}
	return m.child(extra...)
}

func (m *MockLogger) WithError(err error) logging.Logger {
	if err == nil {
		return m
	}
	return m.child(logging.Err(err))
}

func (m *MockLogger) Named(name string) logging.Logger {
	return m.child(logging.String("logger", name))
}

func (m *MockLogger) Sync() error { return nil }

// GetMessages returns a copy of the captured entries.
func (m *MockLogger) GetMessages() []LogMessage {
	t := m.target()
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LogMessage, len(t.Messages))
	copy(out, t.Messages)
	return out
}

// Clear drops the captured entries.
func (m *MockLogger) Clear() {
	t := m.target()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Messages = t.Messages[:0]
}

// HasMessage reports whether an entry with level and msg was logged.
func (m *MockLogger) HasMessage(level, msg string) bool {
	for _, e := range m.GetMessages() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// Count returns the number of entries logged at level.
func (m *MockLogger) Count(level string) int {
	n := 0
	for _, e := range m.GetMessages() {
		if e.Level == level {
			n++
		}
	}
	return n
}
