// Package taskstate decides whether a task's declared file properties have
// changed since its last recorded execution.
//
// A NamedFileChanges captures every declared property eagerly when it is
// created, then compares the capture against the previous execution's
// baseline on demand. The comparison is either structural (properties were
// added or removed) or content-level (files inside unchanged properties
// differ), never both.
package taskstate

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	"github.com/albertocavalcante/uptodate/pkg/snapshot"
)

// FileProperty is a named set of files declared by a task.
type FileProperty struct {
	Name  string
	Files snapshot.FileSet
}

// NewFileProperty is a convenience constructor.
func NewFileProperty(name string, paths ...string) FileProperty {
	return FileProperty{Name: name, Files: snapshot.NewFileSet(paths...)}
}

// PropertySnapshotMap maps property names to snapshots. Iteration follows
// insertion order; SortedNames gives ascending order. The zero value is an
// empty map ready to use.
type PropertySnapshotMap struct {
	names     []string
	snapshots map[string]*snapshot.FileCollectionSnapshot
}

// NewPropertySnapshotMap returns an empty map.
func NewPropertySnapshotMap() *PropertySnapshotMap {
	return &PropertySnapshotMap{snapshots: make(map[string]*snapshot.FileCollectionSnapshot)}
}

// Put adds or replaces a snapshot. Replacing keeps the original position.
func (m *PropertySnapshotMap) Put(name string, snap *snapshot.FileCollectionSnapshot) {
	if m.snapshots == nil {
		m.snapshots = make(map[string]*snapshot.FileCollectionSnapshot)
	}
	if _, ok := m.snapshots[name]; !ok {
		m.names = append(m.names, name)
	}
	m.snapshots[name] = snap
}

// Get returns the snapshot for name.
func (m *PropertySnapshotMap) Get(name string) (*snapshot.FileCollectionSnapshot, bool) {
	if m == nil {
		return nil, false
	}
	s, ok := m.snapshots[name]
	return s, ok
}

// Len returns the number of properties.
func (m *PropertySnapshotMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// Names returns property names in insertion order.
func (m *PropertySnapshotMap) Names() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.names)
}

// SortedNames returns property names in ascending order.
func (m *PropertySnapshotMap) SortedNames() []string {
	names := m.Names()
	slices.Sort(names)
	return names
}

// All iterates name/snapshot pairs in insertion order.
func (m *PropertySnapshotMap) All() iter.Seq2[string, *snapshot.FileCollectionSnapshot] {
	return func(yield func(string, *snapshot.FileCollectionSnapshot) bool) {
		if m == nil {
			return
		}
		for _, name := range m.names {
			if !yield(name, m.snapshots[name]) {
				return
			}
		}
	}
}

type propertyJSON struct {
	Name     string                           `json:"name"`
	Snapshot *snapshot.FileCollectionSnapshot `json:"snapshot"`
}

// MarshalJSON encodes the map as an ordered array.
func (m *PropertySnapshotMap) MarshalJSON() ([]byte, error) {
	props := make([]propertyJSON, 0, m.Len())
	for name, snap := range m.All() {
		props = append(props, propertyJSON{Name: name, Snapshot: snap})
	}
	return json.Marshal(props)
}

// UnmarshalJSON decodes the ordered array form.
func (m *PropertySnapshotMap) UnmarshalJSON(data []byte) error {
	var props []propertyJSON
	if err := json.Unmarshal(data, &props); err != nil {
		return err
	}
	out := NewPropertySnapshotMap()
	for _, p := range props {
		if _, dup := out.snapshots[p.Name]; dup {
			return fmt.Errorf("duplicate property %q in snapshot map", p.Name)
		}
		out.Put(p.Name, p.Snapshot)
	}
	*m = *out
	return nil
}
