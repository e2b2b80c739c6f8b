// Package parsererror defines the typed errors used across the import
// pipeline. Callers match on these types to distinguish validation failures,
// fatal parse failures, missing records and backpressure rejections.
package parsererror

import "fmt"

// ParseError represents a fatal failure of the document parsing step.
// A ParseError terminates the import job; it is distinct from a successful
// parse with low confidence, which is not an error.
type ParseError struct {
	Parser string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: parse failed: %s: %v", e.Parser, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: parse failed: %s", e.Parser, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError represents a synchronous submission validation failure,
// such as an unknown or non-owned target card. No job is created for these.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NotFoundError represents a record that does not exist or does not belong
// to the requesting user. The two cases are deliberately indistinguishable.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// QueueFullError represents a submission rejected because the worker queue
// is at capacity. The job is persisted but not scheduled.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("import queue is full (capacity %d), try again later", e.Capacity)
}

// StateError represents an invalid import job state transition.
type StateError struct {
	From string
	To   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// StorageError wraps a storage-layer failure with the operation that caused it.
type StorageError struct {
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
