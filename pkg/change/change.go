// Package change defines the records produced by up-to-date checks.
//
// A Change is a terminal, immutable fact about what differs between a task's
// baseline and its current state. Consumers only render or count them.
package change

import (
	"fmt"
	"slices"
)

// Change is a single reported difference.
type Change interface {
	Message() string
}

// Descriptive is a change that is fully described by its message.
type Descriptive struct {
	msg string
}

// Describe creates a Descriptive change from a format string.
func Describe(format string, args ...any) Descriptive {
	if len(args) == 0 {
		return Descriptive{msg: format}
	}
	return Descriptive{msg: fmt.Sprintf(format, args...)}
}

// Message returns the change message.
func (d Descriptive) Message() string { return d.msg }

func (d Descriptive) String() string { return d.msg }

// Type classifies a file-level change.
type Type int

const (
	Added Type = iota + 1
	Removed
	Modified
)

// Describe returns the past-tense verb phrase used in messages.
func (t Type) Describe() string {
	switch t {
	case Added:
		return "has been added"
	case Removed:
		return "has been removed"
	case Modified:
		return "has changed"
	default:
		return "has an unknown change"
	}
}

// Symbol returns the single character marker used in compact output.
func (t Type) Symbol() string {
	switch t {
	case Added:
		return "+"
	case Removed:
		return "-"
	case Modified:
		return "~"
	default:
		return "?"
	}
}

func (t Type) String() string {
	switch t {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// FileChange reports that a single file differs from the baseline.
// Title names the owning property, e.g. "Input property 'srcDirs'".
type FileChange struct {
	Title string
	Path  string
	Type  Type
}

// Message renders e.g. "Input property 'srcDirs' file src/a.go has changed."
func (f FileChange) Message() string {
	return fmt.Sprintf("%s file %s %s.", f.Title, f.Path, f.Type.Describe())
}

func (f FileChange) String() string { return f.Message() }

// Filter suppresses a category of file changes.
type Filter int

const (
	// IgnoreAddedFiles drops Added changes. Used for outputs, where new files
	// are the expected product of the task.
	IgnoreAddedFiles Filter = iota + 1
	// IgnoreRemovedFiles drops Removed changes.
	IgnoreRemovedFiles
	// IgnoreTimestamps treats files whose content hash is unchanged as
	// unchanged even when their modification time differs.
	IgnoreTimestamps
)

// Filters is a set of Filter values.
type Filters []Filter

// NewFilters builds a deduplicated, sorted filter set.
func NewFilters(fs ...Filter) Filters {
	out := slices.Clone(fs)
	slices.Sort(out)
	return slices.Compact(out)
}

// Has reports whether f is in the set.
func (fs Filters) Has(f Filter) bool {
	return slices.Contains(fs, f)
}

// With returns a new set that also includes extra.
func (fs Filters) With(extra ...Filter) Filters {
	return NewFilters(append(slices.Clone(fs), extra...)...)
}

// Suppresses reports whether a change of type t is dropped by this set.
func (fs Filters) Suppresses(t Type) bool {
	switch t {
	case Added:
		return fs.Has(IgnoreAddedFiles)
	case Removed:
		return fs.Has(IgnoreRemovedFiles)
	}
	return false
}
