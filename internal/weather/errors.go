package weather

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a pipeline run is requested while another one is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// NetworkError reports an unreachable upstream, a timeout or a non-2xx answer.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SchemaValidationError names the payload field that is missing, mistyped or out of range.
type SchemaValidationError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: invalid payload at %q: %s", e.Provider, e.Field, e.Reason)
}

// UpstreamStatusError is returned when a provider answers with a non-success status marker.
type UpstreamStatusError struct {
	Provider string
	Status   string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s: upstream status %q is not ok", e.Provider, e.Status)
}

// BatchParseError marks a raw batch that could not be decoded. The batch is
// excluded from the merge and left out of the ledger.
type BatchParseError struct {
	Batch string
	Err   error
}

func (e *BatchParseError) Error() string {
	return fmt.Sprintf("raw batch %s: %v", e.Batch, e.Err)
}

func (e *BatchParseError) Unwrap() error { return e.Err }

// PersistenceError is a failed write to raw storage, the curated store or the ledger.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
