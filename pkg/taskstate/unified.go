package taskstate

import (
	"github.com/albertocavalcante/uptodate/pkg/snapshot"
)

// UnifiedSnapshot looks files up across every property of one capture.
// It borrows the map; it is only valid for the pass that produced it.
type UnifiedSnapshot struct {
	snapshots *PropertySnapshotMap
}

// NewUnifiedSnapshot wraps m.
func NewUnifiedSnapshot(m *PropertySnapshotMap) UnifiedSnapshot {
	return UnifiedSnapshot{snapshots: m}
}

// FindFingerprint returns the fingerprint of a normalized path from the
// first property, in declaration order, whose snapshot contains it. A file
// covered by several properties resolves to the first one.
func (u UnifiedSnapshot) FindFingerprint(path string) (snapshot.Fingerprint, bool) {
	_, fp, ok := u.Find(path)
	return fp, ok
}

// Find is FindFingerprint that also names the matching property.
func (u UnifiedSnapshot) Find(path string) (string, snapshot.Fingerprint, bool) {
	for name, snap := range u.snapshots.All() {
		if fp, ok := snap.FindFingerprint(path); ok {
			return name, fp, true
		}
	}
	return "", snapshot.Fingerprint{}, false
}
