// Package snapshot captures content fingerprints of declared file sets and
// compares two captures of the same set.
package snapshot

// Kind is the filesystem type recorded for a path.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindMissing Kind = "missing"
)

// Fingerprint is the identity of one path at capture time.
// Only regular files carry a content hash.
type Fingerprint struct {
	Kind    Kind   `json:"kind"`
	Hash    string `json:"hash,omitempty"`     // hex, algorithm per snapshot
	ModTime int64  `json:"mtime_ns,omitempty"` // UnixNano
	Size    int64  `json:"size,omitempty"`
}

// Entry is a fingerprint keyed by its normalized path.
type Entry struct {
	Path string `json:"path"`
	Fingerprint
}

// differs reports whether the path should be considered changed.
func (f Fingerprint) differs(other Fingerprint, ignoreTimestamps bool) bool {
	if f.Kind != other.Kind {
		return true
	}
	if f.Kind != KindFile {
		return false
	}
	if f.Hash != other.Hash || f.Size != other.Size {
		return true
	}
	return !ignoreTimestamps && f.ModTime != other.ModTime
}
