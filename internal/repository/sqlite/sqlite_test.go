package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/memvault/memvault/internal/record"
	"github.com/memvault/memvault/internal/repository"
)

func newTestStore(t *testing.T, opts ...func(*Config)) *Store {
	t.Helper()

	cfg := Config{Path: filepath.Join(t.TempDir(), "test.db")}
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := Open(cfg, slog.Default())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenMigratesIdempotently(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(Config{Path: path}, slog.Default())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := s1.Store(context.Background(), "u1", record.Data{Content: "x"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Re-opening an existing database must not disturb its contents.
	s2, err := Open(Config{Path: path}, slog.Default())
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer func() { _ = s2.Close() }()

	records, err := s2.History(context.Background(), "u1", repository.Query{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after reopen, want 1", len(records))
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{}, slog.Default()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Store(ctx, "u1", record.Data{
		Content:        "hello",
		ContentType:    "text/markdown",
		ConversationID: "c1",
		Timestamp:      "2026-01-02T03:04:05Z",
		Attributes:     map[string]any{"mood": "calm", "weight": 3.5},
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("no id generated")
	}

	got, err := s.Get(ctx, stored.ID, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "hello" || got.ContentType != "text/markdown" ||
		got.ConversationID != "c1" || got.Timestamp != "2026-01-02T03:04:05.000000000Z" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Attributes["mood"] != "calm" {
		t.Errorf("attributes lost: %+v", got.Attributes)
	}
	// JSON numbers come back as float64.
	if got.Attributes["weight"] != 3.5 {
		t.Errorf("weight = %v, want 3.5", got.Attributes["weight"])
	}
}

func TestStoreValidatesContent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	if _, err := s.Store(context.Background(), "u1", record.Data{}); !errors.Is(err, record.ErrEmptyContent) {
		t.Errorf("got %v, want ErrEmptyContent", err)
	}
}

func TestOwnerIsolation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.Store(ctx, "A", record.Data{Content: "secret"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if _, err := s.Get(ctx, r.ID, "B"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("cross-tenant get: got %v, want ErrNotFound", err)
	}
	if _, err := s.Update(ctx, r.ID, "B", record.Patch{}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("cross-tenant update: got %v, want ErrNotFound", err)
	}
	if ok, _ := s.Delete(ctx, r.ID, "B"); ok {
		t.Error("cross-tenant delete succeeded")
	}
	if _, err := s.Get(ctx, r.ID, "A"); err != nil {
		t.Errorf("owner get after cross-tenant probes: %v", err)
	}
}

func TestUpdateMergesInTransaction(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Store(ctx, "u1", record.Data{
		Content:    "hello",
		Attributes: map[string]any{"a": "1", "b": "2"},
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	ct := "markdown"
	updated, err := s.Update(ctx, stored.ID, "u1", record.Patch{
		ContentType: &ct,
		Attributes:  map[string]any{"b": "9", "c": "3"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "hello" || updated.ContentType != "markdown" {
		t.Errorf("merge result: %+v", updated)
	}

	// Persisted state must match the returned merge.
	got, err := s.Get(ctx, stored.ID, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Attributes["a"] != "1" || got.Attributes["b"] != "9" || got.Attributes["c"] != "3" {
		t.Errorf("persisted attributes: %+v", got.Attributes)
	}
}

func TestUpdateNeverCreates(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	content := "x"
	if _, err := s.Update(ctx, "no-such-id", "u1", record.Patch{Content: &content}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	records, err := s.History(ctx, "u1", repository.Query{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("update created %d records", len(records))
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.Store(ctx, "u1", record.Data{Content: "x"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if ok, err := s.Delete(ctx, r.ID, "u1"); err != nil || !ok {
		t.Fatalf("first delete: (%v, %v)", ok, err)
	}
	if ok, err := s.Delete(ctx, r.ID, "u1"); err != nil || ok {
		t.Fatalf("second delete: (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := s.Get(ctx, r.ID, "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
}

func seedHistory(t *testing.T, s *Store, owner string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		data := record.Data{
			Content:   fmt.Sprintf("msg-%d", i),
			Timestamp: fmt.Sprintf("2026-01-01T00:00:%02dZ", i%60),
		}
		if i%3 == 0 {
			data.ConversationID = "c1"
		}
		if _, err := s.Store(ctx, owner, data); err != nil {
			t.Fatalf("store: %v", err)
		}
	}
}

func TestHistoryOrderingAndFilters(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	seedHistory(t, s, "u1", 9)
	seedHistory(t, s, "u2", 2)

	all, err := s.History(ctx, "u1", repository.Query{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 9 {
		t.Fatalf("got %d records, want 9", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Timestamp < all[i].Timestamp {
			t.Errorf("not in non-increasing timestamp order at %d", i)
		}
		if all[i].Owner != "u1" {
			t.Errorf("foreign record leaked: %+v", all[i])
		}
	}

	limited, err := s.History(ctx, "u1", repository.Query{Limit: 4})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(limited) != 4 {
		t.Errorf("limit=4 returned %d", len(limited))
	}

	conv, err := s.History(ctx, "u1", repository.Query{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(conv) != 3 {
		t.Errorf("conversation filter returned %d, want 3", len(conv))
	}
}

func TestHistoryMixedPrecisionTimestamps(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	older, err := s.Store(ctx, "u1", record.Data{Content: "older", Timestamp: "2026-01-01T00:00:00.12Z"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	newer, err := s.Store(ctx, "u1", record.Data{Content: "newer", Timestamp: "2026-01-01T00:00:00.125Z"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.History(ctx, "u1", repository.Query{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Errorf("mixed-precision timestamps ordered wrong: got %q then %q",
			got[0].Content, got[1].Content)
	}
}

func TestStreamHistoryBatchesMatchFullRead(t *testing.T) {
	t.Parallel()

	// Batch size 4 against 11 records forces multiple keyset fetches.
	s := newTestStore(t, func(c *Config) { c.StreamBatch = 4 })
	ctx := context.Background()
	seedHistory(t, s, "u1", 11)

	want, err := s.History(ctx, "u1", repository.Query{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	it, err := s.StreamHistory(ctx, "u1", repository.Query{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = it.Close() }()

	var got []record.Record
	for {
		r, err := it.Next(ctx)
		if errors.Is(err, repository.ErrDone) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, r)
	}

	if len(got) != len(want) {
		t.Fatalf("streamed %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("stream[%d] = %s, want %s", i, got[i].ID, want[i].ID)
		}
	}
}

func TestStreamHistoryLimit(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(c *Config) { c.StreamBatch = 3 })
	ctx := context.Background()
	seedHistory(t, s, "u1", 10)

	it, err := s.StreamHistory(ctx, "u1", repository.Query{Limit: 7})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = it.Close() }()

	var n int
	for {
		_, err := it.Next(ctx)
		if errors.Is(err, repository.ErrDone) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		n++
	}
	if n != 7 {
		t.Errorf("streamed %d records, want 7", n)
	}
}

func TestStreamHistoryAbandonEarly(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(c *Config) { c.StreamBatch = 2 })
	ctx := context.Background()
	seedHistory(t, s, "u1", 6)

	it, err := s.StreamHistory(ctx, "u1", repository.Query{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if _, err := it.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := it.Next(ctx); !errors.Is(err, repository.ErrDone) {
		t.Errorf("closed cursor: got %v, want ErrDone", err)
	}

	// The store stays usable after an abandoned stream.
	if _, err := s.Store(ctx, "u1", record.Data{Content: "after"}); err != nil {
		t.Errorf("store after abandoned stream: %v", err)
	}
}

func TestPruneBefore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Store(ctx, "u1", record.Data{Content: "old", Timestamp: "2020-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	kept, err := s.Store(ctx, "u1", record.Data{Content: "fresh", Timestamp: "2030-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	n, err := s.PruneBefore(ctx, "2025-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if _, err := s.Get(ctx, kept.ID, "u1"); err != nil {
		t.Errorf("fresh record pruned: %v", err)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
