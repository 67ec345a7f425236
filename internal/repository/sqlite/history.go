package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/memvault/memvault/internal/record"
	"github.com/memvault/memvault/internal/repository"
)

// History implements repository.Repository.
func (s *Store) History(ctx context.Context, owner string, q repository.Query) ([]record.Record, error) {
	query, args := historyQuery(owner, q, "", "", q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: history rows: %w", err)
	}

	return records, nil
}

// StreamHistory implements repository.Repository. The returned cursor
// fetches records in fixed-size batches using keyset pagination on
// (timestamp, id) descending, so peak memory is bounded by the batch
// size regardless of result cardinality.
func (s *Store) StreamHistory(_ context.Context, owner string, q repository.Query) (repository.Iterator, error) {
	remaining := -1
	if q.Limit > 0 {
		remaining = q.Limit
	}
	return &historyCursor{
		store:     s,
		owner:     owner,
		query:     q,
		batch:     s.config.StreamBatch,
		remaining: remaining,
	}, nil
}

// historyCursor is a finite, single-pass batched cursor over an owner's
// history. It is not safe for concurrent use; a stream is driven by one
// goroutine.
type historyCursor struct {
	store *Store
	owner string
	query repository.Query
	batch int

	remaining int // -1 = unlimited
	buf       []record.Record
	pos       int
	lastTS    string
	lastID    string
	done      bool
}

// Compile-time interface check.
var _ repository.Iterator = (*historyCursor)(nil)

// Next implements repository.Iterator.
func (c *historyCursor) Next(ctx context.Context) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	if c.pos >= len(c.buf) {
		if c.done {
			return record.Record{}, repository.ErrDone
		}
		if err := c.fetch(ctx); err != nil {
			return record.Record{}, err
		}
		if len(c.buf) == 0 {
			c.done = true
			return record.Record{}, repository.ErrDone
		}
	}

	r := c.buf[c.pos]
	c.pos++
	if c.remaining > 0 {
		c.remaining--
		if c.remaining == 0 {
			c.done = true
		}
	}
	return r, nil
}

// Close implements repository.Iterator. Batches are fully materialized
// between pulls, so there is no row handle to release; Close just makes
// further pulls terminate immediately.
func (c *historyCursor) Close() error {
	c.done = true
	c.buf = nil
	c.pos = 0
	return nil
}

func (c *historyCursor) fetch(ctx context.Context) error {
	limit := c.batch
	if c.remaining >= 0 && c.remaining < limit {
		limit = c.remaining
	}

	query, args := historyQuery(c.owner, c.query, c.lastTS, c.lastID, limit)

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: stream history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	c.buf = c.buf[:0]
	c.pos = 0
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return err
		}
		c.buf = append(c.buf, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: stream history rows: %w", err)
	}

	if len(c.buf) > 0 {
		last := c.buf[len(c.buf)-1]
		c.lastTS = last.Timestamp
		c.lastID = last.ID
	}
	if len(c.buf) < limit {
		// Short batch: storage is exhausted once this buffer drains.
		// done only stops further fetches; buffered records still flow.
		c.done = true
	}
	return nil
}

// historyQuery builds the shared SELECT for History and the streaming
// cursor. afterTS/afterID, when set, continue a keyset scan strictly
// after that position in (timestamp, id) descending order.
func historyQuery(owner string, q repository.Query, afterTS, afterID string, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString(`
		SELECT id, owner, content, content_type, conversation_id, timestamp, attributes
		FROM records
		WHERE owner = ?`)
	args := []any{owner}

	if q.ConversationID != "" {
		b.WriteString(" AND conversation_id = ?")
		args = append(args, q.ConversationID)
	}
	if afterTS != "" {
		b.WriteString(" AND (timestamp < ? OR (timestamp = ? AND id < ?))")
		args = append(args, afterTS, afterTS, afterID)
	}

	b.WriteString(" ORDER BY timestamp DESC, id DESC")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	return b.String(), args
}
