package taskstate

import (
	"slices"
)

// DiffKind tags a KeyDiff.
type DiffKind int

const (
	KeyAdded DiffKind = iota + 1
	KeyRemoved
	// KeyChanged exists so a general key diff can express it; property key
	// sets never produce it and observing one is an invariant violation.
	KeyChanged
)

func (k DiffKind) String() string {
	switch k {
	case KeyAdded:
		return "added"
	case KeyRemoved:
		return "removed"
	case KeyChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// KeyDiff is one outcome of DiffKeys.
type KeyDiff struct {
	Kind DiffKind
	Name string
}

// DiffKeys returns the symmetric difference of two key sets: keys only in
// current (added, ascending) followed by keys only in previous (removed,
// ascending). Keys present in both are not reported.
func DiffKeys(current, previous []string) []KeyDiff {
	cur := sortedSet(current)
	prev := sortedSet(previous)

	var diffs []KeyDiff
	for _, name := range cur {
		if _, found := slices.BinarySearch(prev, name); !found {
			diffs = append(diffs, KeyDiff{Kind: KeyAdded, Name: name})
		}
	}
	for _, name := range prev {
		if _, found := slices.BinarySearch(cur, name); !found {
			diffs = append(diffs, KeyDiff{Kind: KeyRemoved, Name: name})
		}
	}
	return diffs
}

func sortedSet(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
