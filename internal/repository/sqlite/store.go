package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/memvault/memvault/internal/record"
	"github.com/memvault/memvault/internal/repository"
)

// Store implements repository.Repository.
func (s *Store) Store(ctx context.Context, owner string, data record.Data) (record.Record, error) {
	r, err := record.New(owner, data)
	if err != nil {
		return record.Record{}, err
	}

	attrsJSON, err := marshalAttributes(r.Attributes)
	if err != nil {
		return record.Record{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, owner, content, content_type, conversation_id, timestamp, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Owner, r.Content, r.ContentType, r.ConversationID, r.Timestamp, attrsJSON,
	)
	if err != nil {
		return record.Record{}, fmt.Errorf("sqlite: store record: %w", err)
	}

	return r, nil
}

// Get implements repository.Repository.
func (s *Store) Get(ctx context.Context, id, owner string) (record.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, content, content_type, conversation_id, timestamp, attributes
		FROM records
		WHERE id = ? AND owner = ?`,
		id, owner,
	)

	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, repository.ErrNotFound
		}
		return record.Record{}, err
	}
	return r, nil
}

// Update implements repository.Repository. The read-merge-write runs in
// a single transaction so concurrent updates never interleave a partial
// merge.
func (s *Store) Update(ctx context.Context, id, owner string, patch record.Patch) (record.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return record.Record{}, fmt.Errorf("sqlite: begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, owner, content, content_type, conversation_id, timestamp, attributes
		FROM records
		WHERE id = ? AND owner = ?`,
		id, owner,
	)

	current, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, repository.ErrNotFound
		}
		return record.Record{}, err
	}

	merged := current.Apply(patch)

	attrsJSON, err := marshalAttributes(merged.Attributes)
	if err != nil {
		return record.Record{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE records
		SET content = ?, content_type = ?, conversation_id = ?, timestamp = ?, attributes = ?
		WHERE id = ? AND owner = ?`,
		merged.Content, merged.ContentType, merged.ConversationID, merged.Timestamp, attrsJSON,
		id, owner,
	); err != nil {
		return record.Record{}, fmt.Errorf("sqlite: update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return record.Record{}, fmt.Errorf("sqlite: commit update: %w", err)
	}
	return merged, nil
}

// Delete implements repository.Repository.
func (s *Store) Delete(ctx context.Context, id, owner string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE id = ? AND owner = ?", id, owner)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n > 0, nil
}

// PruneBefore implements repository.Repository.
func (s *Store) PruneBefore(ctx context.Context, cutoff string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune records: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

func marshalAttributes(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("sqlite: marshal attributes: %w", err)
	}
	return string(b), nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (record.Record, error) {
	var (
		r         record.Record
		attrsJSON string
	)

	if err := sc.Scan(&r.ID, &r.Owner, &r.Content, &r.ContentType, &r.ConversationID, &r.Timestamp, &attrsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("sqlite: scan record: %w", err)
	}

	if attrsJSON != "" && attrsJSON != "{}" && attrsJSON != "null" {
		if err := json.Unmarshal([]byte(attrsJSON), &r.Attributes); err != nil {
			return r, fmt.Errorf("sqlite: unmarshal attributes: %w", err)
		}
	}

	return r, nil
}
