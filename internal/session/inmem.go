package session

import (
	"context"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/steward-ai/steward/internal/types"
)

// InMemoryStore is a Recorder that keeps run records in memory, in arrival
// order. Used by the CLI and tests; production deployments substitute a
// persistent Recorder behind the same interface.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byRun   map[types.ID]int
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byRun: make(map[types.ID]int),
	}
}

// Record appends the run record, replacing any prior record for the same run.
func (s *InMemoryStore) Record(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byRun[record.RunID]; ok {
		s.records[idx] = record
		return nil
	}
	s.byRun[record.RunID] = len(s.records)
	s.records = append(s.records, record)
	return nil
}

// Get returns the record for a run id.
func (s *InMemoryStore) Get(runID types.ID) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byRun[runID]
	if !ok {
		return Record{}, false
	}
	return s.records[idx], true
}

// List returns all records in arrival order.
func (s *InMemoryStore) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ExportYAML renders all stored records as a YAML document, for inspection
// and CLI output.
func (s *InMemoryStore) ExportYAML() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return yaml.Marshal(s.records)
}
