package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/memvault/memvault/internal/record"
	"github.com/memvault/memvault/internal/repository"
)

// Built-in resource path prefixes.
const (
	HistoryPrefix = "history/"
	ItemPrefix    = "item/"
)

// RegisterBuiltins wires the memory tool set and the history/item
// resource generators onto the registries, all backed by repo.
func RegisterBuiltins(tools *ToolRegistry, resources *ResourceRegistry, repo repository.Repository) {
	tools.Register("store_memory", storeMemoryTool(repo))
	tools.Register("get_memory", getMemoryTool(repo))
	tools.Register("update_memory", updateMemoryTool(repo))
	tools.Register("delete_memory", deleteMemoryTool(repo))
	tools.Register("get_history", getHistoryTool(repo))

	resources.Register(HistoryPrefix, historyGenerator(repo))
	resources.Register(ItemPrefix, itemGenerator(repo))
}

// storeMemoryTool persists a new record. Argument keys outside the fixed
// schema are folded into the attribute bag, alongside an optional
// explicit "attributes" object.
func storeMemoryTool(repo repository.Repository) ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		owner, err := requiredString(args, "owner")
		if err != nil {
			return nil, err
		}
		content, err := requiredString(args, "content")
		if err != nil {
			return nil, err
		}

		data := record.Data{Content: content}
		if data.ContentType, err = optionalString(args, "content_type"); err != nil {
			return nil, err
		}
		if data.ConversationID, err = optionalString(args, "conversation_id"); err != nil {
			return nil, err
		}
		if data.Timestamp, err = optionalString(args, "timestamp"); err != nil {
			return nil, err
		}
		if data.Attributes, err = collectAttributes(args); err != nil {
			return nil, err
		}

		r, err := repo.Store(ctx, owner, data)
		if err != nil {
			return nil, err
		}
		return r.WireMap(), nil
	}
}

// getMemoryTool returns the record for id and owner, or nil when absent.
// A wrong owner is indistinguishable from a missing id.
func getMemoryTool(repo repository.Repository) ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		id, err := requiredString(args, "id")
		if err != nil {
			return nil, err
		}
		owner, err := requiredString(args, "owner")
		if err != nil {
			return nil, err
		}

		r, err := repo.Get(ctx, id, owner)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return r.WireMap(), nil
	}
}

// updateMemoryTool merges the supplied fields into an existing record
// and returns the merged result, or nil when no record matches.
func updateMemoryTool(repo repository.Repository) ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		id, err := requiredString(args, "id")
		if err != nil {
			return nil, err
		}
		owner, err := requiredString(args, "owner")
		if err != nil {
			return nil, err
		}

		patch, err := patchFromArgs(args)
		if err != nil {
			return nil, err
		}

		r, err := repo.Update(ctx, id, owner, patch)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return r.WireMap(), nil
	}
}

// deleteMemoryTool removes a record, reporting whether one existed.
func deleteMemoryTool(repo repository.Repository) ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		id, err := requiredString(args, "id")
		if err != nil {
			return nil, err
		}
		owner, err := requiredString(args, "owner")
		if err != nil {
			return nil, err
		}

		deleted, err := repo.Delete(ctx, id, owner)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deleted": deleted}, nil
	}
}

// getHistoryTool returns the owner's records newest first. Unlike the
// path-addressed history resource, limit and conversation_id can be
// combined here.
func getHistoryTool(repo repository.Repository) ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		owner, err := requiredString(args, "owner")
		if err != nil {
			return nil, err
		}

		var q repository.Query
		if q.Limit, err = optionalInt(args, "limit"); err != nil {
			return nil, err
		}
		if q.Limit < 0 {
			return nil, fmt.Errorf("limit must not be negative, got %d", q.Limit)
		}
		if q.ConversationID, err = optionalString(args, "conversation_id"); err != nil {
			return nil, err
		}

		records, err := repo.History(ctx, owner, q)
		if err != nil {
			return nil, err
		}

		out := make([]map[string]any, 0, len(records))
		for _, r := range records {
			out = append(out, r.WireMap())
		}
		return out, nil
	}
}

// historyGenerator parses history resource paths:
//
//	history/<owner>
//	history/<owner>/limit/<N>
//	history/<owner>/conversation/<conversation_id>
//
// The grammar does not combine limit and conversation filters; combining
// them requires the get_history tool.
func historyGenerator(repo repository.Repository) Generator {
	return func(ctx context.Context, path string) (repository.Iterator, error) {
		tail := strings.TrimPrefix(path, HistoryPrefix)
		segments := strings.Split(tail, "/")
		if len(segments) == 0 || segments[0] == "" {
			return nil, Errf(CodeInvalidRequest, "history path is missing an owner: %s", path)
		}

		owner := segments[0]
		var q repository.Query

		switch {
		case len(segments) == 1:
			// Full history.
		case len(segments) == 3 && segments[1] == "limit":
			n, err := strconv.Atoi(segments[2])
			if err != nil || n < 0 {
				return nil, Errf(CodeInvalidRequest, "invalid history limit %q", segments[2])
			}
			q.Limit = n
		case len(segments) == 3 && segments[1] == "conversation":
			if segments[2] == "" {
				return nil, Errf(CodeInvalidRequest, "history conversation filter is empty: %s", path)
			}
			q.ConversationID = segments[2]
		default:
			return nil, Errf(CodeInvalidRequest, "unparseable history path: %s", path)
		}

		return repo.StreamHistory(ctx, owner, q)
	}
}

// itemGenerator parses item/<item_id>/<owner> and emits the matching
// record as a one-element sequence, or zero elements when the record is
// absent or belongs to another owner.
func itemGenerator(repo repository.Repository) Generator {
	return func(ctx context.Context, path string) (repository.Iterator, error) {
		tail := strings.TrimPrefix(path, ItemPrefix)
		segments := strings.Split(tail, "/")
		if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
			return nil, Errf(CodeInvalidRequest, "unparseable item path: %s", path)
		}

		r, err := repo.Get(ctx, segments[0], segments[1])
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return repository.NewSliceIterator(nil), nil
			}
			return nil, err
		}
		return repository.NewSliceIterator([]record.Record{r}), nil
	}
}

// --- argument helpers ---

// fixedArgKeys are argument names bound to fixed schema fields or tool
// parameters; everything else in a store payload is an open attribute.
var fixedArgKeys = map[string]struct{}{
	"id":              {},
	"owner":           {},
	"content":         {},
	"content_type":    {},
	"conversation_id": {},
	"timestamp":       {},
	"attributes":      {},
	"limit":           {},
}

func requiredString(args map[string]any, key string) (string, error) {
	s, err := optionalString(args, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("missing required field: %s", key)
	}
	return s, nil
}

func optionalString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s must be a string, got %T", key, v)
	}
	return s, nil
}

// optionalInt accepts JSON numbers (float64 after decoding) and ints.
func optionalInt(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("field %s must be an integer, got %v", key, n)
		}
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("field %s must be an integer, got %T", key, v)
	}
}

// collectAttributes merges the explicit "attributes" object with any
// unrecognized top-level argument keys, preserving the open-schema call
// style where extra fields travel next to the fixed ones.
func collectAttributes(args map[string]any) (map[string]any, error) {
	attrs := make(map[string]any)

	if v, ok := args["attributes"]; ok && v != nil {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field attributes must be an object, got %T", v)
		}
		for k, val := range obj {
			attrs[k] = val
		}
	}

	for k, v := range args {
		if _, fixed := fixedArgKeys[k]; fixed {
			continue
		}
		attrs[k] = v
	}

	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

// patchFromArgs builds a partial update from the supplied fields only.
func patchFromArgs(args map[string]any) (record.Patch, error) {
	var p record.Patch

	for _, key := range []string{"content", "content_type", "conversation_id", "timestamp"} {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return record.Patch{}, fmt.Errorf("field %s must be a string, got %T", key, v)
		}
		switch key {
		case "content":
			p.Content = &s
		case "content_type":
			p.ContentType = &s
		case "conversation_id":
			p.ConversationID = &s
		case "timestamp":
			ts, err := record.NormalizeTimestamp(s)
			if err != nil {
				return record.Patch{}, err
			}
			p.Timestamp = &ts
		}
	}

	attrs, err := collectAttributes(args)
	if err != nil {
		return record.Patch{}, err
	}
	p.Attributes = attrs
	return p, nil
}
