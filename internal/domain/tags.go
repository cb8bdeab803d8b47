package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// Tags is a normalized set of labels: trimmed, lower-cased, unique and sorted.
// The zero value is an empty set.
type Tags []string

// NewTags builds a normalized tag set from arbitrary input.
func NewTags(in ...string) Tags {
	seen := make(map[string]struct{}, len(in))
	out := make(Tags, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
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

// Has reports whether t contains tag (after normalization).
func (t Tags) Has(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Intersects reports whether t and other share at least one tag.
// An empty set never intersects anything.
func (t Tags) Intersects(other Tags) bool {
	for _, x := range other {
		if t.Has(x) {
			return true
		}
	}
	return false
}

// TagsFromMetadata extracts the legacy "tags" list from a JSON metadata blob.
// Missing, malformed or non-list values yield an empty set.
func TagsFromMetadata(raw []byte) Tags {
	if len(raw) == 0 {
		return Tags{}
	}
	var blob map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Tags{}
	}
	v, ok := blob["tags"]
	if !ok {
		return Tags{}
	}
	var list []interface{}
	if err := json.Unmarshal(v, &list); err != nil {
		return Tags{}
	}
	strs := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			strs = append(strs, s)
		}
	}
	return NewTags(strs...)
}
