package logging

import "sync"

// MockLogger is a Logger implementation for tests. It records every message
// so assertions can inspect what was logged; it never exits on Fatal.
type MockLogger struct {
	mu       sync.Mutex
	Messages []MockMessage
}

// MockMessage is a single recorded log call.
type MockMessage struct {
	Level  string
	Msg    string
	Fields []Field
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) record(level, msg string, fields []Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, MockMessage{Level: level, Msg: msg, Fields: fields})
}

// Debug records a debug message.
func (m *MockLogger) Debug(msg string, fields ...Field) { m.record("debug", msg, fields) }

// Info records an info message.
func (m *MockLogger) Info(msg string, fields ...Field) { m.record("info", msg, fields) }

// Warn records a warn message.
func (m *MockLogger) Warn(msg string, fields ...Field) { m.record("warn", msg, fields) }

// Error records an error message.
func (m *MockLogger) Error(msg string, fields ...Field) { m.record("error", msg, fields) }

// Fatal records a fatal message without exiting.
func (m *MockLogger) Fatal(msg string, fields ...Field) { m.record("fatal", msg, fields) }

// WithError returns the same logger; the error is recorded as a field on
// subsequent calls only in real adapters.
func (m *MockLogger) WithError(err error) Logger { return m }

// WithField returns the same logger.
func (m *MockLogger) WithField(key string, value interface{}) Logger { return m }

// WithFields returns the same logger.
func (m *MockLogger) WithFields(fields ...Field) Logger { return m }
