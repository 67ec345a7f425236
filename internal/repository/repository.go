// Package repository defines owner-scoped storage of records with
// ordered, filtered retrieval and a batched streaming read path.
// Implementations must be safe for concurrent use; every operation is
// parameterized by owner, so cross-tenant access is structurally
// impossible regardless of interleaving.
package repository

import (
	"context"
	"errors"

	"github.com/memvault/memvault/internal/record"
)

// DefaultStreamBatch is the number of records a streaming cursor
// materializes from storage per pull.
const DefaultStreamBatch = 100

var (
	// ErrNotFound is returned when no record matches both id and owner.
	// A wrong owner is indistinguishable from a missing id; callers must
	// not be able to probe for another tenant's ids.
	ErrNotFound = errors.New("repository: record not found")

	// ErrDone is returned by Iterator.Next once the sequence is exhausted.
	ErrDone = errors.New("repository: iterator done")
)

// Query narrows History and StreamHistory results. The zero value means
// all records for the owner, newest first.
type Query struct {
	// Limit caps the number of returned records. 0 means no cap.
	Limit int

	// ConversationID filters to a single conversation when non-empty.
	ConversationID string
}

// Iterator is a finite, single-pass pull cursor over records. Next
// returns ErrDone when the sequence is exhausted. Close releases the
// underlying storage scope and must be called on every exit path; it is
// safe to call Close without draining the iterator.
type Iterator interface {
	Next(ctx context.Context) (record.Record, error)
	Close() error
}

// Repository is the owner-scoped record store.
type Repository interface {
	// Store validates and persists a new record, returning it with its
	// generated id. The mutation is transactional: on failure nothing is
	// persisted.
	Store(ctx context.Context, owner string, data record.Data) (record.Record, error)

	// Get returns the record only if both id and owner match, else
	// ErrNotFound.
	Get(ctx context.Context, id, owner string) (record.Record, error)

	// Update merges patch into the existing record and returns the
	// merged result. Returns ErrNotFound if no record matches; it never
	// creates a record.
	Update(ctx context.Context, id, owner string, patch record.Patch) (record.Record, error)

	// Delete removes the record, reporting whether a matching record
	// existed.
	Delete(ctx context.Context, id, owner string) (bool, error)

	// History returns the owner's records ordered by timestamp
	// descending, filtered and capped per q.
	History(ctx context.Context, owner string, q Query) ([]record.Record, error)

	// StreamHistory has History semantics but materializes results in
	// fixed-size batches, bounding peak memory for large result sets.
	StreamHistory(ctx context.Context, owner string, q Query) (Iterator, error)

	// PruneBefore removes records of all owners with a timestamp
	// strictly before cutoff, returning the number removed. The
	// comparison is lexical, so cutoff should be in the canonical
	// form produced by record.FormatTimestamp.
	PruneBefore(ctx context.Context, cutoff string) (int, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}

// SliceIterator adapts an in-memory slice to the Iterator interface.
type SliceIterator struct {
	records []record.Record
	pos     int
}

// NewSliceIterator returns an iterator over records.
func NewSliceIterator(records []record.Record) *SliceIterator {
	return &SliceIterator{records: records}
}

// Compile-time interface check.
var _ Iterator = (*SliceIterator)(nil)

// Next implements Iterator.
func (it *SliceIterator) Next(ctx context.Context) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}
	if it.pos >= len(it.records) {
		return record.Record{}, ErrDone
	}
	r := it.records[it.pos]
	it.pos++
	return r, nil
}

// Close implements Iterator.
func (it *SliceIterator) Close() error {
	it.records = nil
	it.pos = 0
	return nil
}
