package parser

import (
	"context"
	"sync"
)

// MockParser is a StatementParser for tests. It returns a canned statement or
// error and records how many times it was called.
type MockParser struct {
	Statement *ParsedStatement
	Err       error

	// ErrFor returns statements or errors keyed by a marker found in the
	// input bytes, so one mock can serve concurrent jobs differently.
	ErrFor       map[string]error
	StatementFor map[string]*ParsedStatement

	mu    sync.Mutex
	calls int
}

// Parse returns the configured statement or error.
func (m *MockParser) Parse(ctx context.Context, data []byte) (*ParsedStatement, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	key := string(data)
	if err, ok := m.ErrFor[key]; ok {
		return nil, err
	}
	if st, ok := m.StatementFor[key]; ok {
		return st, nil
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Statement, nil
}

// Calls returns the number of Parse invocations.
func (m *MockParser) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
