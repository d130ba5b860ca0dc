package snapshot

import (
	"slices"
	"strings"

	"github.com/albertocavalcante/uptodate/pkg/util"
)

// FileSet is an ordered, deduplicated list of paths declared by one property.
// Entries are plain paths (files or directories, walked recursively) or
// doublestar patterns such as "src/**/*.go". Relative entries resolve
// against the snapshotter root.
type FileSet struct {
	Paths    []string `json:"paths"`
	Excludes []string `json:"excludes,omitempty"`
}

// NewFileSet builds a FileSet, dropping empty and repeated paths.
func NewFileSet(paths ...string) FileSet {
	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	return FileSet{Paths: util.Dedup(clean)}
}

// Exclude returns a copy of fs that also skips paths matching patterns.
// Patterns are doublestar globs matched against normalized paths.
func (fs FileSet) Exclude(patterns ...string) FileSet {
	return FileSet{
		Paths:    slices.Clone(fs.Paths),
		Excludes: util.Dedup(append(slices.Clone(fs.Excludes), patterns...)),
	}
}

// IsEmpty reports whether the set declares no paths.
func (fs FileSet) IsEmpty() bool {
	return len(fs.Paths) == 0
}

// Key identifies the set for snapshot reuse.
func (fs FileSet) Key() string {
	var b strings.Builder
	for _, p := range fs.Paths {
		b.WriteString(p)
		b.WriteByte(0)
	}
	b.WriteByte(0)
	for _, p := range fs.Excludes {
		b.WriteString(p)
		b.WriteByte(0)
	}
	return b.String()
}

func (fs FileSet) String() string {
	s := strings.Join(fs.Paths, ", ")
	if len(fs.Excludes) > 0 {
		s += " (excluding " + strings.Join(fs.Excludes, ", ") + ")"
	}
	return s
}
