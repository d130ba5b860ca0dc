package snapshot

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes are always skipped when walking a file set: VCS metadata,
// OS litter and uptodate's own state directory. Patterns match normalized
// (slash separated) paths.
var DefaultExcludes = []string{
	"**/.git",
	"**/.hg",
	"**/.svn",
	"**/.uptodate",
	"**/.DS_Store",
}

// excluder matches normalized paths against a list of doublestar patterns.
type excluder struct {
	patterns []string
}

func newExcluder(patterns ...[]string) excluder {
	var all []string
	for _, p := range patterns {
		all = append(all, p...)
	}
	return excluder{patterns: all}
}

// match reports whether path, or any directory above it, is excluded.
// Invalid patterns never match; they are rejected when the config is
// validated.
func (e excluder) match(path string) bool {
	for {
		if e.matchOne(path) {
			return true
		}
		i := strings.LastIndexByte(path, '/')
		if i <= 0 {
			return false
		}
		path = path[:i]
	}
}

func (e excluder) matchOne(path string) bool {
	for _, p := range e.patterns {
		if ok, err := doublestar.Match(p, path); err == nil && ok {
			return true
		}
	}
	return false
}
