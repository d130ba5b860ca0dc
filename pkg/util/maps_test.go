package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]int{"src/main.c": 1, "build.gradle.kts": 2, "out/app.bin": 3})
	assert.Equal(t, []string{"build.gradle.kts", "out/app.bin", "src/main.c"}, got)
}

func TestDedup(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil", nil, nil},
		{"no duplicates", []string{"b", "a"}, []string{"b", "a"}},
		{"keeps first occurrence", []string{"src", "lib", "src", "gen", "lib"}, []string{"src", "lib", "gen"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dedup(tt.input))
		})
	}
}
