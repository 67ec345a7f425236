// Package memstore provides a thread-safe, in-memory Repository
// implementation. It backs the "memory" storage backend for ephemeral
// deployments and serves as the reference implementation in tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/memvault/memvault/internal/record"
	"github.com/memvault/memvault/internal/repository"
)

// Store is an in-memory owner-scoped record store.
type Store struct {
	mu      sync.RWMutex
	records map[string]record.Record // id -> record
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]record.Record)}
}

// Compile-time interface check.
var _ repository.Repository = (*Store)(nil)

// Store implements repository.Repository.
func (s *Store) Store(_ context.Context, owner string, data record.Data) (record.Record, error) {
	r, err := record.New(owner, data)
	if err != nil {
		return record.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return r, nil
}

// Get implements repository.Repository.
func (s *Store) Get(_ context.Context, id, owner string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok || r.Owner != owner {
		return record.Record{}, repository.ErrNotFound
	}
	return r, nil
}

// Update implements repository.Repository.
func (s *Store) Update(_ context.Context, id, owner string, patch record.Patch) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Owner != owner {
		return record.Record{}, repository.ErrNotFound
	}

	merged := r.Apply(patch)
	s.records[id] = merged
	return merged, nil
}

// Delete implements repository.Repository.
func (s *Store) Delete(_ context.Context, id, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Owner != owner {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

// History implements repository.Repository.
func (s *Store) History(_ context.Context, owner string, q repository.Query) ([]record.Record, error) {
	s.mu.RLock()
	var matched []record.Record
	for _, r := range s.records {
		if r.Owner != owner {
			continue
		}
		if q.ConversationID != "" && r.ConversationID != q.ConversationID {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	// Newest first; id breaks timestamp ties for a stable order.
	slices.SortFunc(matched, func(a, b record.Record) int {
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// StreamHistory implements repository.Repository. Everything already
// lives in memory, so the cursor is a plain slice iterator; the batched
// read path only matters for disk-backed implementations.
func (s *Store) StreamHistory(ctx context.Context, owner string, q repository.Query) (repository.Iterator, error) {
	records, err := s.History(ctx, owner, q)
	if err != nil {
		return nil, err
	}
	return repository.NewSliceIterator(records), nil
}

// PruneBefore implements repository.Repository.
func (s *Store) PruneBefore(_ context.Context, cutoff string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int
	for id, r := range s.records {
		if r.Timestamp < cutoff {
			delete(s.records, id)
			pruned++
		}
	}
	return pruned, nil
}

// Ping implements repository.Repository.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close implements repository.Repository.
func (s *Store) Close() error { return nil }

// Len returns the total number of stored records across all owners.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
