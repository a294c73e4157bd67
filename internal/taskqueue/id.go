package taskqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
)

// transportKeys are options that affect delivery, not meaning. They are
// excluded from hashing so a retried call with a different timeout still
// hits the same cache entry.
var transportKeys = map[string]struct{}{
	"timeout":    {},
	"wait_sec":   {},
	"stream":     {},
	"request_id": {},
}

// ComputeTaskID derives the deterministic content hash for a unit of work.
// Identical semantic content always maps to the same id regardless of map
// key order or transport-only options.
func ComputeTaskID(task string, messages []Message, options map[string]any) (string, error) {
	if task == "" {
		return "", fmt.Errorf("task name is required")
	}

	payload := map[string]any{
		"task":     task,
		"messages": canonicalMessages(messages),
		"options":  canonicalValue(stripTransport(options)),
	}

	// encoding/json writes map keys in sorted order with no whitespace,
	// which is the whole canonical form once empty values are pruned.
	data, err := json.Marshal(canonicalValue(payload))
	if err != nil {
		return "", fmt.Errorf("canonicalize task payload: %w", err)
	}

	sum := sha256.Sum256(data)
	return task + "__" + hex.EncodeToString(sum[:])[:32], nil
}

func stripTransport(options map[string]any) map[string]any {
	if len(options) == 0 {
		return nil
	}
	out := make(map[string]any, len(options))
	for k, v := range options {
		if _, ok := transportKeys[k]; ok {
			continue
		}
		out[k] = v
	}
	return out
}

func canonicalMessages(messages []Message) []any {
	out := make([]any, 0, len(messages))
	for _, m := range messages {
		entry := map[string]any{}
		if m.Role != "" {
			entry["role"] = m.Role
		}
		if m.Content != "" {
			entry["content"] = m.Content
		}
		out = append(out, entry)
	}
	return out
}

// canonicalValue prunes nil and empty values recursively so that an absent
// key and an explicitly-empty one hash identically.
func canonicalValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			c := canonicalValue(item)
			if isEmpty(c) {
				continue
			}
			out[k] = c
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, canonicalValue(item))
		}
		return out
	default:
		return val
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return rv.Len() == 0
	}
	return false
}
