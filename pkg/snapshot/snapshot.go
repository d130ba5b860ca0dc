package snapshot

import (
	"encoding/json"
	"iter"
	"slices"
	"strings"

	"github.com/albertocavalcante/uptodate/pkg/change"
)

// FileCollectionSnapshot is the captured state of one FileSet. It is
// immutable once built and safe to share between readers.
type FileCollectionSnapshot struct {
	algorithm Algorithm
	entries   []Entry // sorted by Path, unique
}

// New builds a snapshot from entries. Later duplicates of a path win.
func New(algorithm Algorithm, entries []Entry) *FileCollectionSnapshot {
	byPath := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byPath[e.Path] = e
	}
	sorted := make([]Entry, 0, len(byPath))
	for _, e := range byPath {
		sorted = append(sorted, e)
	}
	slices.SortFunc(sorted, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	return &FileCollectionSnapshot{algorithm: algorithm, entries: sorted}
}

// Algorithm returns the hash algorithm used for file entries.
func (s *FileCollectionSnapshot) Algorithm() Algorithm {
	if s == nil {
		return ""
	}
	return s.algorithm
}

// Len returns the number of entries.
func (s *FileCollectionSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries iterates entries in path order.
func (s *FileCollectionSnapshot) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if s == nil {
			return
		}
		for _, e := range s.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// FindFingerprint returns the fingerprint recorded for a normalized path.
func (s *FileCollectionSnapshot) FindFingerprint(path string) (Fingerprint, bool) {
	if s == nil {
		return Fingerprint{}, false
	}
	i, ok := slices.BinarySearchFunc(s.entries, path, func(e Entry, p string) int {
		return strings.Compare(e.Path, p)
	})
	if !ok {
		return Fingerprint{}, false
	}
	return s.entries[i].Fingerprint, true
}

// ChangesSince lazily compares s against previous and yields one
// change.FileChange per differing path, in path order. title prefixes each
// message. A nil previous reports every entry as added.
func (s *FileCollectionSnapshot) ChangesSince(previous *FileCollectionSnapshot, title string, filters change.Filters) iter.Seq[change.Change] {
	return func(yield func(change.Change) bool) {
		var cur, prev []Entry
		if s != nil {
			cur = s.entries
		}
		if previous != nil {
			prev = previous.entries
		}
		ignoreTimestamps := filters.Has(change.IgnoreTimestamps)

		emit := func(path string, t change.Type) bool {
			if filters.Suppresses(t) {
				return true
			}
			return yield(change.FileChange{Title: title, Path: path, Type: t})
		}

		i, j := 0, 0
		for i < len(cur) || j < len(prev) {
			var ok bool
			switch {
			case j >= len(prev) || (i < len(cur) && cur[i].Path < prev[j].Path):
				ok = emit(cur[i].Path, change.Added)
				i++
			case i >= len(cur) || prev[j].Path < cur[i].Path:
				ok = emit(prev[j].Path, change.Removed)
				j++
			default:
				ok = true
				if cur[i].differs(prev[j].Fingerprint, ignoreTimestamps) {
					ok = emit(cur[i].Path, change.Modified)
				}
				i++
				j++
			}
			if !ok {
				return
			}
		}
	}
}

type snapshotJSON struct {
	Algorithm Algorithm `json:"algorithm"`
	Entries   []Entry   `json:"entries"`
}

// MarshalJSON implements json.Marshaler.
func (s *FileCollectionSnapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(snapshotJSON{Algorithm: s.algorithm, Entries: entries})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *FileCollectionSnapshot) UnmarshalJSON(data []byte) error {
	var w snapshotJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = *New(w.Algorithm, w.Entries)
	return nil
}
