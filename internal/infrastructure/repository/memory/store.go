// Package memory is an in-process ExecutionStore with the same versioned
// Save contract as the postgres implementation. Used in tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type Store struct {
	mu      sync.Mutex
	records map[string]*domain.ExecutionRecord
	byRef   map[string]string
}

func New() *Store {
	return &Store{
		records: make(map[string]*domain.ExecutionRecord),
		byRef:   make(map[string]string),
	}
}

func (s *Store) Load(_ context.Context, executionID string) (*domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[executionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrExecutionNotFound, "load execution", fmt.Errorf("id=%s", executionID))
	}
	return cloneRecord(record), nil
}

// Save is a compare-and-swap on record.Version. A new record inserts only at
// version 0; an update succeeds only against the stored version, then bumps
// it. The caller's in-memory copy is updated to the new version on success.
func (s *Store) Save(_ context.Context, record *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.records[record.ID]
	if !exists {
		if record.Version != 0 {
			return domain.WrapError(domain.ErrConflict, "save execution", fmt.Errorf("id=%s version=%d against missing record", record.ID, record.Version))
		}
		record.Version = 1
		s.records[record.ID] = cloneRecord(record)
		s.byRef[record.Ref.String()] = record.ID
		return nil
	}

	if stored.Version != record.Version {
		return domain.WrapError(domain.ErrConflict, "save execution", fmt.Errorf("id=%s version=%d stored=%d", record.ID, record.Version, stored.Version))
	}
	record.Version++
	s.records[record.ID] = cloneRecord(record)
	return nil
}

func (s *Store) Exists(_ context.Context, ref domain.DocumentRef) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRef[ref.String()]
	return id, ok, nil
}

func cloneRecord(record *domain.ExecutionRecord) *domain.ExecutionRecord {
	out := *record
	out.Payload = record.Payload.Clone()
	if record.Audit != nil {
		out.Audit = make([]domain.ReplayEvent, len(record.Audit))
		copy(out.Audit, record.Audit)
	}
	return &out
}
