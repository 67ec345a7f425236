package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/memvault/memvault/internal/repository"
)

func callOK(t *testing.T, d *Dispatcher, tool string, args map[string]any) any {
	t.Helper()
	env := d.CallTool(context.Background(), tool, args)
	if env.Err != nil {
		t.Fatalf("%s: unexpected error %+v", tool, env.Err)
	}
	return env.Result
}

func TestStoreGetDeleteScenario(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	stored := callOK(t, d, "store_memory", map[string]any{
		"owner":        "u1",
		"content":      "hello",
		"content_type": "text",
	}).(map[string]any)
	id := stored["id"].(string)
	if id == "" {
		t.Fatal("no id assigned")
	}

	got := callOK(t, d, "get_memory", map[string]any{"id": id, "owner": "u1"}).(map[string]any)
	if got["content"] != "hello" || got["content_type"] != "text" {
		t.Errorf("round-trip mismatch: %v", got)
	}

	// Wrong owner is indistinguishable from a missing id.
	if res := callOK(t, d, "get_memory", map[string]any{"id": id, "owner": "u2"}); res != nil {
		t.Errorf("cross-tenant get returned %v, want nil", res)
	}

	del := callOK(t, d, "delete_memory", map[string]any{"id": id, "owner": "u1"}).(map[string]any)
	if del["deleted"] != true {
		t.Error("first delete should report true")
	}
	del = callOK(t, d, "delete_memory", map[string]any{"id": id, "owner": "u1"}).(map[string]any)
	if del["deleted"] != false {
		t.Error("second delete should report false")
	}
	if res := callOK(t, d, "get_memory", map[string]any{"id": id, "owner": "u1"}); res != nil {
		t.Errorf("get after delete returned %v, want nil", res)
	}
}

func TestStoreMemoryOpenAttributes(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	stored := callOK(t, d, "store_memory", map[string]any{
		"owner":      "u1",
		"content":    "hello",
		"attributes": map[string]any{"mood": "calm"},
		"project":    "memvault", // unknown key folds into the bag
	}).(map[string]any)

	if stored["mood"] != "calm" {
		t.Errorf("explicit attribute missing: %v", stored)
	}
	if stored["project"] != "memvault" {
		t.Errorf("open key not folded into attributes: %v", stored)
	}
}

func TestStoreMemoryMissingContent(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	env := d.CallTool(context.Background(), "store_memory", map[string]any{"owner": "u1"})
	if env.Err == nil || env.Err.Code != CodeExecutionError {
		t.Fatalf("got %+v, want tool_execution_error", env)
	}
}

func TestStoreMemoryRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	env := d.CallTool(context.Background(), "store_memory", map[string]any{
		"owner":     "u1",
		"content":   "x",
		"timestamp": "yesterday-ish",
	})
	if env.Err == nil || env.Err.Code != CodeExecutionError {
		t.Fatalf("got %+v, want tool_execution_error", env)
	}
}

func TestUpdateMemoryPartialMerge(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	stored := callOK(t, d, "store_memory", map[string]any{
		"owner":      "u1",
		"content":    "hello",
		"attributes": map[string]any{"a": "1"},
	}).(map[string]any)
	id := stored["id"].(string)

	updated := callOK(t, d, "update_memory", map[string]any{
		"id":           id,
		"owner":        "u1",
		"content_type": "markdown",
		"attributes":   map[string]any{"b": "2"},
	}).(map[string]any)

	if updated["content"] != "hello" {
		t.Errorf("content changed: %v", updated["content"])
	}
	if updated["content_type"] != "markdown" {
		t.Errorf("content_type = %v, want markdown", updated["content_type"])
	}
	if updated["a"] != "1" || updated["b"] != "2" {
		t.Errorf("attribute merge broken: %v", updated)
	}

	// Update never creates a record.
	if res := callOK(t, d, "update_memory", map[string]any{
		"id": "missing", "owner": "u1", "content": "x",
	}); res != nil {
		t.Errorf("update of missing id returned %v, want nil", res)
	}
}

func TestGetHistoryOrderingAndFilters(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	for i := 0; i < 5; i++ {
		args := map[string]any{
			"owner":     "u1",
			"content":   fmt.Sprintf("msg-%d", i),
			"timestamp": fmt.Sprintf("2026-01-0%dT00:00:00Z", i+1),
		}
		if i%2 == 0 {
			args["conversation_id"] = "c1"
		}
		callOK(t, d, "store_memory", args)
	}

	all := callOK(t, d, "get_history", map[string]any{"owner": "u1"}).([]map[string]any)
	if len(all) != 5 {
		t.Fatalf("got %d records, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1]["timestamp"].(string) < all[i]["timestamp"].(string) {
			t.Errorf("history not in non-increasing timestamp order at %d", i)
		}
	}

	limited := callOK(t, d, "get_history", map[string]any{"owner": "u1", "limit": float64(2)}).([]map[string]any)
	if len(limited) != 2 {
		t.Errorf("limit=2 returned %d records", len(limited))
	}

	conv := callOK(t, d, "get_history", map[string]any{"owner": "u1", "conversation_id": "c1"}).([]map[string]any)
	if len(conv) != 3 {
		t.Errorf("conversation filter returned %d records, want 3", len(conv))
	}
	for _, r := range conv {
		if r["conversation_id"] != "c1" {
			t.Errorf("filtered record in wrong conversation: %v", r)
		}
	}

	// Tool path combines limit and conversation, unlike the resource grammar.
	both := callOK(t, d, "get_history", map[string]any{
		"owner": "u1", "conversation_id": "c1", "limit": float64(1),
	}).([]map[string]any)
	if len(both) != 1 {
		t.Errorf("combined filters returned %d records, want 1", len(both))
	}
}

func TestHistoryResourceGrammar(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		args := map[string]any{
			"owner":     "u1",
			"content":   "x",
			"timestamp": fmt.Sprintf("2026-01-0%dT00:00:00Z", i+1),
		}
		if i == 0 {
			args["conversation_id"] = "c9"
		}
		callOK(t, d, "store_memory", args)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "full history", path: "history/u1", want: 4},
		{name: "limited", path: "history/u1/limit/2", want: 2},
		{name: "conversation", path: "history/u1/conversation/c9", want: 1},
		{name: "other owner", path: "history/u2", want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			it, derr := d.OpenResource(ctx, tt.path)
			if derr != nil {
				t.Fatalf("open: %+v", derr)
			}
			defer func() { _ = it.Close() }()

			if got := drain(t, it); got != tt.want {
				t.Errorf("streamed %d records, want %d", got, tt.want)
			}
		})
	}
}

func TestHistoryResourceInvalidPaths(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	for _, path := range []string{
		"history/",
		"history/u1/limit/NaN",
		"history/u1/limit/-1",
		"history/u1/bogus/x",
		"history/u1/conversation/",
	} {
		_, derr := d.OpenResource(ctx, path)
		if derr == nil || derr.Code != CodeInvalidRequest {
			t.Errorf("path %q: got %+v, want invalid_request", path, derr)
		}
	}
}

func TestItemResource(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	stored := callOK(t, d, "store_memory", map[string]any{
		"owner":   "u1",
		"content": "hello",
	}).(map[string]any)
	id := stored["id"].(string)

	it, derr := d.OpenResource(ctx, ItemPrefix+id+"/u1")
	if derr != nil {
		t.Fatalf("open: %+v", derr)
	}
	if got := drain(t, it); got != 1 {
		t.Errorf("item stream yielded %d records, want 1", got)
	}

	// Wrong owner: a zero-element sequence, not an error.
	it, derr = d.OpenResource(ctx, ItemPrefix+id+"/u2")
	if derr != nil {
		t.Fatalf("open: %+v", derr)
	}
	if got := drain(t, it); got != 0 {
		t.Errorf("cross-tenant item stream yielded %d records, want 0", got)
	}

	if _, derr = d.OpenResource(ctx, "item/onlyid"); derr == nil || derr.Code != CodeInvalidRequest {
		t.Errorf("got %+v, want invalid_request", derr)
	}
}

func drain(t *testing.T, it repository.Iterator) int {
	t.Helper()
	defer func() { _ = it.Close() }()

	var n int
	for {
		_, err := it.Next(context.Background())
		if errors.Is(err, repository.ErrDone) {
			return n
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		n++
	}
}
