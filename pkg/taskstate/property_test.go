package taskstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/uptodate/pkg/snapshot"
)

func TestDiffKeys(t *testing.T) {
	tests := []struct {
		name     string
		current  []string
		previous []string
		want     []KeyDiff
	}{
		{"equal", []string{"b", "a"}, []string{"a", "b"}, nil},
		{"added", []string{"srcDirs", "resources"}, []string{"srcDirs"}, []KeyDiff{{KeyAdded, "resources"}}},
		{"removed", []string{"srcDirs"}, []string{"srcDirs", "classpath"}, []KeyDiff{{KeyRemoved, "classpath"}}},
		{
			"rename is add plus remove",
			[]string{"sources", "z", "a"},
			[]string{"srcDirs", "z", "b"},
			[]KeyDiff{{KeyAdded, "a"}, {KeyAdded, "sources"}, {KeyRemoved, "b"}, {KeyRemoved, "srcDirs"}},
		},
		{"both empty", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DiffKeys(tt.current, tt.previous))
		})
	}
}

func TestPropertySnapshotMapPutKeepsPosition(t *testing.T) {
	m := NewPropertySnapshotMap()
	m.Put("b", snap())
	m.Put("a", snap())
	replacement := snap(fileEntry("x", "1"))
	m.Put("b", replacement)

	assert.Equal(t, []string{"b", "a"}, m.Names())
	got, ok := m.Get("b")
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.Equal(t, 2, m.Len())
}

func TestPropertySnapshotMapZeroValue(t *testing.T) {
	var m PropertySnapshotMap
	m.Put("srcDirs", snap())
	assert.Equal(t, 1, m.Len())

	var nilMap *PropertySnapshotMap
	assert.Zero(t, nilMap.Len())
	assert.Nil(t, nilMap.Names())
	_, ok := nilMap.Get("srcDirs")
	assert.False(t, ok)
}

func TestPropertySnapshotMapJSON(t *testing.T) {
	m := mapOf(
		"srcDirs", snap(fileEntry("src/a.go", "a")),
		"classpath", snap(fileEntry("lib/x.jar", "x")),
	)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded PropertySnapshotMap
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"srcDirs", "classpath"}, decoded.Names())

	fp, ok := NewUnifiedSnapshot(&decoded).FindFingerprint("lib/x.jar")
	require.True(t, ok)
	assert.Equal(t, "x", fp.Hash)
}

func TestPropertySnapshotMapJSONRejectsDuplicates(t *testing.T) {
	var m PropertySnapshotMap
	err := json.Unmarshal([]byte(`[{"name":"a","snapshot":null},{"name":"a","snapshot":null}]`), &m)
	assert.Error(t, err)
}

func TestUnifiedSnapshotFirstMatch(t *testing.T) {
	h := newHarness(map[string]*snapshot.FileCollectionSnapshot{
		"src": snap(fileEntry("shared.txt", "from-src"), fileEntry("src/a.go", "a")),
		"res": snap(fileEntry("shared.txt", "from-res")),
	})
	c := h.build(t, []FileProperty{NewFileProperty("srcDirs", "src"), NewFileProperty("resources", "res")}, NoBaseline())
	u := c.UnifiedSnapshot()

	name, fp, ok := u.Find("shared.txt")
	require.True(t, ok)
	assert.Equal(t, "srcDirs", name)
	assert.Equal(t, "from-src", fp.Hash)

	fp, ok = u.FindFingerprint("src/a.go")
	require.True(t, ok)
	assert.Equal(t, "a", fp.Hash)

	_, ok = u.FindFingerprint("nowhere.txt")
	assert.False(t, ok)
}
