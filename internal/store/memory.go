package store

import (
	"context"
	"errors"
	"sync"

	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

var (
	// ErrDatasetNotFound is returned when the curated dataset has not been created yet.
	ErrDatasetNotFound = errors.New("curated dataset not found")
)

// MemoryStore is a concurrency-safe in-memory curated store. It backs the
// "memory" curated storage mode and is handy in tests.
type MemoryStore struct {
	mu sync.RWMutex

	records []weather.CuratedRecord
	// false until the first Merge, so reads can tell "missing" from "empty".
	created bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Merge combines records into the dataset; existing keys are kept.
func (s *MemoryStore) Merge(_ context.Context, records []weather.CuratedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = weather.CombineCurated(s.records, records)
	s.created = true
	return nil
}

// Recent returns up to limit records, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]weather.CuratedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.created {
		return nil, ErrDatasetNotFound
	}
	return weather.NewestFirst(s.records, limit), nil
}

// All returns a copy of the dataset.
func (s *MemoryStore) All(_ context.Context) ([]weather.CuratedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.created {
		return nil, ErrDatasetNotFound
	}
	out := make([]weather.CuratedRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// MemoryLedger is the in-process ledger paired with MemoryStore. Both start
// empty on every process start, so the ledger never lists a batch whose
// records are missing from the dataset.
type MemoryLedger struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{ids: make(map[string]struct{})}
}

// Processed returns a copy of the recorded identities.
func (l *MemoryLedger) Processed(_ context.Context) (map[string]struct{}, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]struct{}, len(l.ids))
	for id := range l.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// MarkProcessed adds ids; empty identities are ignored.
func (l *MemoryLedger) MarkProcessed(_ context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		if id != "" {
			l.ids[id] = struct{}{}
		}
	}
	return nil
}
