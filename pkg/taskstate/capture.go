package taskstate

import (
	"context"
	"fmt"

	"github.com/albertocavalcante/uptodate/pkg/snapshot"
)

// Snapshotter captures the current state of a file set. allowReuse permits
// returning a previously captured in-memory snapshot instead of rescanning.
type Snapshotter interface {
	Snapshot(ctx context.Context, files snapshot.FileSet, allowReuse bool) (*snapshot.FileCollectionSnapshot, error)
}

// Capture snapshots every property, in declaration order. The first
// snapshotter failure aborts the pass with a *CaptureError; no partial map
// is returned.
func Capture(ctx context.Context, taskName, title string, properties []FileProperty, snapshotter Snapshotter, allowReuse bool) (*PropertySnapshotMap, error) {
	seen := make(map[string]struct{}, len(properties))
	for _, p := range properties {
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("%s property '%s' of task '%s': %w", title, p.Name, taskName, ErrDuplicateProperty)
		}
		seen[p.Name] = struct{}{}
	}

	m := NewPropertySnapshotMap()
	for _, p := range properties {
		snap, err := snapshotter.Snapshot(ctx, p.Files, allowReuse)
		if err != nil {
			return nil, &CaptureError{Title: title, TaskName: taskName, Property: p.Name, Err: err}
		}
		m.Put(p.Name, snap)
	}
	return m, nil
}
