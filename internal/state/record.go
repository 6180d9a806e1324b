package state

import (
	"fmt"
	"math"
	"time"
)

// MediaResolver turns a stored media path into a URL the UI can load.
type MediaResolver func(path string) string

// FromRecord maps a server row (snake_case columns) onto an Item. The row
// must carry an id. resolve may be nil, in which case media paths are kept
// as-is.
func FromRecord(row map[string]any, resolve MediaResolver) (Item, error) {
	id := stringField(row, "id")
	if id == "" {
		return Item{}, fmt.Errorf("state: record has no id")
	}

	item := Item{
		ID:           id,
		UserID:       stringField(row, "user_id"),
		Content:      stringField(row, "content"),
		IsAnonymous:  boolField(row, "is_anonymous"),
		MediaType:    stringField(row, "media_type"),
		LikesCount:   intField(row, "likes_count"),
		RepliesCount: intField(row, "replies_count"),
	}

	if media := stringField(row, "media_url"); media != "" {
		if resolve != nil {
			media = resolve(media)
		}
		item.MediaURL = media
	}

	if raw := stringField(row, "created_at"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Item{}, fmt.Errorf("state: parse created_at %q: %w", raw, err)
		}
		item.CreatedAt = t
	}
	return item, nil
}

func stringField(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}

func boolField(row map[string]any, key string) bool {
	b, _ := row[key].(bool)
	return b
}

func intField(row map[string]any, key string) int {
	switch v := row[key].(type) {
	case float64:
		return int(math.Round(v))
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
