package taskstate

import (
	"context"
	"errors"
	"iter"

	"github.com/albertocavalcante/uptodate/pkg/change"
)

// Baseline is the previous execution's snapshot map. An unavailable
// baseline means the task has no usable history.
type Baseline struct {
	Snapshots *PropertySnapshotMap
	Available bool
}

// NoBaseline returns an unavailable baseline.
func NoBaseline() Baseline {
	return Baseline{}
}

// BaselineOf wraps m; a nil map is treated as unavailable history.
func BaselineOf(m *PropertySnapshotMap) Baseline {
	return Baseline{Snapshots: m, Available: m != nil}
}

// Committer receives the full current snapshot map when a task succeeds.
// It replaces whatever baseline was stored before.
type Committer interface {
	CommitSnapshots(m *PropertySnapshotMap)
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(m *PropertySnapshotMap)

// CommitSnapshots calls f(m).
func (f CommitFunc) CommitSnapshots(m *PropertySnapshotMap) { f(m) }

// Options configures New.
type Options struct {
	TaskName    string
	Title       string // "Input", "Output", ...
	Properties  []FileProperty
	Snapshotter Snapshotter
	AllowReuse  bool
	Filters     change.Filters
	Previous    Baseline
	Committer   Committer
}

// NamedFileChanges is one change-detection pass over a task's properties
// of a single kind. It is not safe for concurrent use.
type NamedFileChanges struct {
	taskName   string
	title      string
	allowReuse bool
	filters    change.Filters
	previous   Baseline
	current    *PropertySnapshotMap
	committer  Committer
	committed  bool
}

// New captures the current state of every property and returns the pass.
// Capture failures are returned as *CaptureError.
func New(ctx context.Context, opts Options) (*NamedFileChanges, error) {
	if opts.Snapshotter == nil {
		return nil, errors.New("taskstate: snapshotter is required")
	}
	if opts.Committer == nil {
		return nil, errors.New("taskstate: committer is required")
	}

	current, err := Capture(ctx, opts.TaskName, opts.Title, opts.Properties, opts.Snapshotter, opts.AllowReuse)
	if err != nil {
		return nil, err
	}

	return &NamedFileChanges{
		taskName:   opts.TaskName,
		title:      opts.Title,
		allowReuse: opts.AllowReuse,
		filters:    opts.Filters,
		previous:   opts.Previous,
		current:    current,
		committer:  opts.Committer,
	}, nil
}

// TaskName returns the task being checked.
func (c *NamedFileChanges) TaskName() string { return c.taskName }

// Title returns the property kind title.
func (c *NamedFileChanges) Title() string { return c.title }

// AllowReuse reports whether the capture allowed snapshot reuse.
func (c *NamedFileChanges) AllowReuse() bool { return c.allowReuse }

// Current returns the map captured at construction.
func (c *NamedFileChanges) Current() *PropertySnapshotMap { return c.current }

// Previous returns the baseline the pass compares against.
func (c *NamedFileChanges) Previous() Baseline { return c.previous }

// Changes returns the lazy change sequence for this pass. Each call starts
// over from the captured state, so ranging twice yields the same records.
//
// Without history the sequence is a single "file history is not available"
// record. Otherwise, if properties were added or removed, only those
// structural records are yielded. Otherwise each property's file changes
// are yielded in ascending property-name order.
//
// Observing an impossible diff outcome panics with *InvariantError.
func (c *NamedFileChanges) Changes() iter.Seq[change.Change] {
	return func(yield func(change.Change) bool) {
		if !c.previous.Available {
			yield(change.Describe("%s file history is not available.", c.title))
			return
		}

		if structural := c.structuralChanges(); len(structural) > 0 {
			for _, ch := range structural {
				if !yield(ch) {
					return
				}
			}
			return
		}

		for ch := range c.contentChanges() {
			if !yield(ch) {
				return
			}
		}
	}
}

func (c *NamedFileChanges) structuralChanges() []change.Change {
	diffs := DiffKeys(c.current.Names(), c.previous.Snapshots.Names())
	changes := make([]change.Change, 0, len(diffs))
	for _, d := range diffs {
		switch d.Kind {
		case KeyAdded:
			changes = append(changes, change.Describe("%s property '%s' has been added for task '%s'", c.title, d.Name, c.taskName))
		case KeyRemoved:
			changes = append(changes, change.Describe("%s property '%s' has been removed for task '%s'", c.title, d.Name, c.taskName))
		default:
			panic(invariantf("property set diff reported %s for %s property '%s' of task '%s'", d.Kind, c.title, d.Name, c.taskName))
		}
	}
	return changes
}

// contentChanges concatenates each property's changes. A property's
// comparison only starts once the previous one is exhausted.
func (c *NamedFileChanges) contentChanges() iter.Seq[change.Change] {
	return func(yield func(change.Change) bool) {
		for _, name := range c.current.SortedNames() {
			cur, _ := c.current.Get(name)
			prev, ok := c.previous.Snapshots.Get(name)
			if !ok {
				panic(invariantf("%s property '%s' of task '%s' has no previous snapshot", c.title, name, c.taskName))
			}
			title := c.title + " property '" + name + "'"
			for ch := range cur.ChangesSince(prev, title, c.filters) {
				if !yield(ch) {
					return
				}
			}
		}
	}
}

// Commit hands the construction-time snapshot map to the committer as the
// new baseline. Call it once, only after the task's work succeeded.
func (c *NamedFileChanges) Commit() error {
	if c.committed {
		return ErrAlreadyCommitted
	}
	c.committer.CommitSnapshots(c.current)
	c.committed = true
	return nil
}

// UnifiedSnapshot returns a lookup view over the current capture.
func (c *NamedFileChanges) UnifiedSnapshot() UnifiedSnapshot {
	return UnifiedSnapshot{snapshots: c.current}
}
