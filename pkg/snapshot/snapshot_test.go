package snapshot

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/uptodate/pkg/change"
)

func file(path, hash string, mtime int64) Entry {
	return Entry{Path: path, Fingerprint: Fingerprint{Kind: KindFile, Hash: hash, ModTime: mtime, Size: int64(len(hash))}}
}

func dir(path string) Entry {
	return Entry{Path: path, Fingerprint: Fingerprint{Kind: KindDir}}
}

func collect(t *testing.T, s *FileCollectionSnapshot, prev *FileCollectionSnapshot, filters change.Filters) []change.FileChange {
	t.Helper()
	var out []change.FileChange
	for c := range s.ChangesSince(prev, "Input property 'srcDirs'", filters) {
		fc, ok := c.(change.FileChange)
		require.True(t, ok, "unexpected change type %T", c)
		out = append(out, fc)
	}
	return out
}

func TestNewSortsAndDedups(t *testing.T) {
	s := New(XXHash, []Entry{file("b.go", "1", 1), file("a.go", "2", 1), file("b.go", "3", 1)})

	var paths []string
	for e := range s.Entries() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"a.go", "b.go"}, paths)

	fp, ok := s.FindFingerprint("b.go")
	require.True(t, ok)
	assert.Equal(t, "3", fp.Hash, "later duplicates win")
}

func TestFindFingerprint(t *testing.T) {
	s := New(XXHash, []Entry{dir("src"), file("src/a.go", "aa", 1)})

	fp, ok := s.FindFingerprint("src/a.go")
	require.True(t, ok)
	assert.Equal(t, KindFile, fp.Kind)

	_, ok = s.FindFingerprint("src/missing.go")
	assert.False(t, ok)

	var nilSnap *FileCollectionSnapshot
	_, ok = nilSnap.FindFingerprint("src/a.go")
	assert.False(t, ok)
}

func TestChangesSince(t *testing.T) {
	prev := New(XXHash, []Entry{
		file("deleted.go", "d", 1),
		file("modified.go", "m1", 1),
		file("touched.go", "t", 1),
		file("unchanged.go", "u", 1),
	})
	cur := New(XXHash, []Entry{
		file("added.go", "a", 1),
		file("modified.go", "m2", 2),
		file("touched.go", "t", 5),
		file("unchanged.go", "u", 1),
	})

	got := collect(t, cur, prev, nil)
	want := []change.FileChange{
		{Title: "Input property 'srcDirs'", Path: "added.go", Type: change.Added},
		{Title: "Input property 'srcDirs'", Path: "deleted.go", Type: change.Removed},
		{Title: "Input property 'srcDirs'", Path: "modified.go", Type: change.Modified},
		{Title: "Input property 'srcDirs'", Path: "touched.go", Type: change.Modified},
	}
	assert.Equal(t, want, got)
}

func TestChangesSinceFilters(t *testing.T) {
	prev := New(XXHash, []Entry{file("deleted.go", "d", 1), file("touched.go", "t", 1)})
	cur := New(XXHash, []Entry{file("added.go", "a", 1), file("touched.go", "t", 9)})

	tests := []struct {
		name    string
		filters change.Filters
		want    []string
	}{
		{"none", nil, []string{"added.go", "deleted.go", "touched.go"}},
		{"ignore timestamps", change.NewFilters(change.IgnoreTimestamps), []string{"added.go", "deleted.go"}},
		{"ignore added", change.NewFilters(change.IgnoreAddedFiles), []string{"deleted.go", "touched.go"}},
		{"ignore removed", change.NewFilters(change.IgnoreRemovedFiles), []string{"added.go", "touched.go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var paths []string
			for _, c := range collect(t, cur, prev, tt.filters) {
				paths = append(paths, c.Path)
			}
			assert.Equal(t, tt.want, paths)
		})
	}
}

func TestChangesSinceKindChange(t *testing.T) {
	prev := New(XXHash, []Entry{{Path: "out", Fingerprint: Fingerprint{Kind: KindMissing}}})
	cur := New(XXHash, []Entry{dir("out")})

	got := collect(t, cur, prev, change.NewFilters(change.IgnoreTimestamps))
	require.Len(t, got, 1)
	assert.Equal(t, change.Modified, got[0].Type)
}

func TestChangesSinceDirectoriesIgnoreMetadata(t *testing.T) {
	prev := New(XXHash, []Entry{{Path: "src", Fingerprint: Fingerprint{Kind: KindDir, ModTime: 1}}})
	cur := New(XXHash, []Entry{{Path: "src", Fingerprint: Fingerprint{Kind: KindDir, ModTime: 2}}})

	assert.Empty(t, collect(t, cur, prev, nil))
}

func TestChangesSinceNilPrevious(t *testing.T) {
	cur := New(XXHash, []Entry{file("a.go", "a", 1), file("b.go", "b", 1)})

	got := collect(t, cur, nil, nil)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, change.Added, c.Type)
	}
}

func TestChangesSinceStopsEarly(t *testing.T) {
	cur := New(XXHash, []Entry{file("a.go", "a", 1), file("b.go", "b", 1), file("c.go", "c", 1)})

	n := 0
	for range cur.ChangesSince(nil, "Input", nil) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestChangesSinceIsRepeatable(t *testing.T) {
	prev := New(XXHash, []Entry{file("a.go", "a", 1)})
	cur := New(XXHash, []Entry{file("a.go", "b", 1), file("c.go", "c", 1)})

	seq := cur.ChangesSince(prev, "Input", nil)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	s := New(XXH3, []Entry{file("b.go", "b", 2), dir("a")})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded FileCollectionSnapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, XXH3, decoded.Algorithm())
	assert.Equal(t, 2, decoded.Len())
	assert.Empty(t, slices.Collect(decoded.ChangesSince(s, "Input", nil)))
}
