// Package record defines the persisted memory entity, its validation
// rules, and the partial-merge semantics used by updates. A record has a
// small fixed schema plus an open attribute bag; the two are only merged
// at the serialization boundary (see WireMap), never in storage logic.
package record

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultContentType is used when the caller omits a content type.
const DefaultContentType = "text/plain"

// timestampLayout is a fixed-width RFC 3339 layout. Nanoseconds are
// zero-padded instead of trimmed so that lexical order on stored
// timestamps matches temporal order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrEmptyContent is returned when a record is created without content.
var ErrEmptyContent = errors.New("record: content must not be empty")

// ErrEmptyOwner is returned when a record is created without an owner.
var ErrEmptyOwner = errors.New("record: owner must not be empty")

// reservedKeys are the fixed schema fields. Attribute bag entries with
// these names are stored but never rendered over the fixed field.
var reservedKeys = map[string]struct{}{
	"id":              {},
	"owner":           {},
	"content":         {},
	"content_type":    {},
	"conversation_id": {},
	"timestamp":       {},
}

// IsReserved reports whether key collides with a fixed schema field.
func IsReserved(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// Record is one stored user datum. ID and Owner are immutable after
// creation; Timestamp is the descending sort key for history retrieval
// and does not have to equal wall-clock insertion time.
type Record struct {
	ID             string
	Owner          string
	Content        string
	ContentType    string
	ConversationID string
	Timestamp      string
	Attributes     map[string]any
}

// Data is the caller-supplied payload for creating a record.
type Data struct {
	Content        string
	ContentType    string
	ConversationID string
	Timestamp      string
	Attributes     map[string]any
}

// New validates data and builds a record with a freshly generated ID.
// ContentType defaults to DefaultContentType and Timestamp to the
// current UTC time when omitted. A supplied Timestamp is normalized to
// the canonical fixed-width UTC form.
func New(owner string, data Data) (Record, error) {
	if strings.TrimSpace(owner) == "" {
		return Record{}, ErrEmptyOwner
	}
	if strings.TrimSpace(data.Content) == "" {
		return Record{}, ErrEmptyContent
	}

	r := Record{
		ID:             uuid.NewString(),
		Owner:          owner,
		Content:        data.Content,
		ContentType:    data.ContentType,
		ConversationID: data.ConversationID,
		Timestamp:      data.Timestamp,
		Attributes:     maps.Clone(data.Attributes),
	}
	if r.ContentType == "" {
		r.ContentType = DefaultContentType
	}
	if r.Timestamp == "" {
		r.Timestamp = NowTimestamp()
	} else {
		ts, err := NormalizeTimestamp(r.Timestamp)
		if err != nil {
			return Record{}, err
		}
		r.Timestamp = ts
	}
	return r, nil
}

// NowTimestamp returns the current UTC time in the canonical Timestamp
// form.
func NowTimestamp() string {
	return FormatTimestamp(time.Now())
}

// FormatTimestamp renders t in the canonical Timestamp form: UTC,
// fixed width, nanosecond precision. Two canonical values compare
// lexically the same way their instants compare temporally.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// NormalizeTimestamp parses an RFC 3339 timestamp and re-renders it in
// the canonical form. Stored timestamps are compared lexically, so a
// caller-supplied value with variable fractional precision or a
// non-UTC offset would break history ordering if kept verbatim.
func NormalizeTimestamp(ts string) (string, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "", fmt.Errorf("record: invalid timestamp %q: %w", ts, err)
	}
	return FormatTimestamp(t), nil
}

// Patch is a partial update. Nil pointer fields are left untouched;
// Attributes merges key-by-key into the existing bag. A Timestamp must
// already be in the canonical form (see NormalizeTimestamp).
type Patch struct {
	Content        *string
	ContentType    *string
	ConversationID *string
	Timestamp      *string
	Attributes     map[string]any
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Content == nil && p.ContentType == nil && p.ConversationID == nil &&
		p.Timestamp == nil && len(p.Attributes) == 0
}

// Apply returns a copy of r with the patch merged in. Only supplied
// fields change; attribute keys present in the patch overwrite existing
// entries, new keys are added, untouched keys are preserved. ID and
// Owner are never modified.
func (r Record) Apply(p Patch) Record {
	out := r
	out.Attributes = maps.Clone(r.Attributes)

	if p.Content != nil {
		out.Content = *p.Content
	}
	if p.ContentType != nil {
		out.ContentType = *p.ContentType
	}
	if p.ConversationID != nil {
		out.ConversationID = *p.ConversationID
	}
	if p.Timestamp != nil {
		out.Timestamp = *p.Timestamp
	}
	if len(p.Attributes) > 0 {
		if out.Attributes == nil {
			out.Attributes = make(map[string]any, len(p.Attributes))
		}
		maps.Copy(out.Attributes, p.Attributes)
	}
	return out
}

// WireMap renders the record as a flat JSON-ready object: the attribute
// bag merged at the top level with the fixed fields layered on top, so a
// reserved-name attribute can never shadow the fixed field it collides
// with. Empty optional fields are omitted.
func (r Record) WireMap() map[string]any {
	out := make(map[string]any, len(r.Attributes)+6)
	for k, v := range r.Attributes {
		if IsReserved(k) {
			continue
		}
		out[k] = v
	}

	out["id"] = r.ID
	out["owner"] = r.Owner
	out["content"] = r.Content
	out["content_type"] = r.ContentType
	out["timestamp"] = r.Timestamp
	if r.ConversationID != "" {
		out["conversation_id"] = r.ConversationID
	}
	return out
}
