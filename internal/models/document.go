package models

import (
	"sort"
	"time"
)

// Document is a scored social-media post owned by the content store
type Document struct {
	ID              int64     `json:"id"`
	PublishedAt     time.Time `json:"published_at"`
	Content         string    `json:"content"`
	DetectedToolIDs []string  `json:"detected_tool_ids"`
}

// ContentFilter restricts which documents a job visits
type ContentFilter struct {
	From  *time.Time
	To    *time.Time
	MaxID *int64
}

// NormalizeTags returns a sorted, de-duplicated copy without empty entries.
// The result is never nil so it encodes as an empty list.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TagsEqual compares two tag sets regardless of order or duplicates.
func TagsEqual(a, b []string) bool {
	na, nb := NormalizeTags(a), NormalizeTags(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}
