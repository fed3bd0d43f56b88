// Package watchlist models the ordered list of watched directories and its
// persisted JSON form. Older installations stored bare path strings; Parse
// accepts both shapes and Encode always writes the structured one.
package watchlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
)

var ErrDuplicate = errors.New("directory is already watched")

// Entry is one watched directory. Path is its identity.
type Entry struct {
	Path            string `json:"path"`
	WritesClipboard bool   `json:"writesClipboard,omitempty"`
	OpensNewTab     bool   `json:"opensNewTab,omitempty"`
}

// Parse decodes a persisted watchlist. Empty input yields an empty list.
func Parse(data []byte) ([]Entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("watchlist is not a JSON array: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for i, item := range raw {
		var path string
		if err := json.Unmarshal(item, &path); err == nil {
			entries = append(entries, Entry{Path: path})
			continue
		}
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("watchlist item %d: %w", i, err)
		}
		if e.Path == "" {
			return nil, fmt.Errorf("watchlist item %d: missing path", i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func Encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(entries)
}

// Index returns the position of path in entries, or -1.
func Index(entries []Entry, path string) int {
	path = filepath.Clean(path)
	for i, e := range entries {
		if filepath.Clean(e.Path) == path {
			return i
		}
	}
	return -1
}

// Add appends e, refusing a path that is already present.
func Add(entries []Entry, e Entry) ([]Entry, error) {
	if Index(entries, e.Path) >= 0 {
		return entries, fmt.Errorf("%s: %w", e.Path, ErrDuplicate)
	}
	return append(entries, e), nil
}

// Remove drops path from entries and reports whether it was present.
func Remove(entries []Entry, path string) ([]Entry, bool) {
	i := Index(entries, path)
	if i < 0 {
		return entries, false
	}
	out := make([]Entry, 0, len(entries)-1)
	out = append(out, entries[:i]...)
	return append(out, entries[i+1:]...), true
}

// Diff compares two lists by path. An entry whose flags changed appears in
// both removed and added so its watcher is restarted.
func Diff(old, next []Entry) (added, removed []Entry) {
	for _, e := range next {
		i := Index(old, e.Path)
		if i < 0 || old[i] != e {
			added = append(added, e)
		}
	}
	for _, e := range old {
		i := Index(next, e.Path)
		if i < 0 || next[i] != e {
			removed = append(removed, e)
		}
	}
	return added, removed
}
