package materializer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

func TestAdjustedEntryOffset(t *testing.T) {
	tests := []struct {
		name      string
		cur       xiso.SizeBytes
		entrySize xiso.SizeBytes
		want      xiso.SizeBytes
	}{
		{"fits at start", 0, 100, 0},
		{"fits mid sector", 1000, 100, 1000},
		{"ends exactly on boundary", 2048 - 100, 100, 2048 - 100},
		{"would straddle", 2048 - 50, 100, 2048},
		{"straddle in later sector", 4096 - 4, 24, 4096},
		{"fits in later sector", 4096 + 100, 24, 4096 + 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adjustedEntryOffset(tt.cur, tt.entrySize))
		})
	}
}

func TestNameTreeOrdersByLowercasedName(t *testing.T) {
	tree := &nameTree{}
	for _, name := range []string{"Zulu.bin", "alpha.bin", "MIKE.bin"} {
		tree.insert(name)
	}

	entries := tree.preorder()
	assert.Len(t, entries, 3)

	// Root first, then its subtrees: the root must compare between its
	// children regardless of the original casing.
	root := entries[0]
	assert.Equal(t, "MIKE.bin", root.name)
	assert.Equal(t, "alpha.bin", root.leftName)
	assert.Equal(t, "Zulu.bin", root.rightName)
}

func TestNameTreeDeterministicShape(t *testing.T) {
	build := func(names []string) []preorderEntry {
		tree := &nameTree{}
		for _, n := range names {
			tree.insert(n)
		}
		return tree.preorder()
	}

	names := []string{"d", "b", "f", "a", "c", "e", "g"}
	first := build(names)
	second := build(names)
	assert.Equal(t, first, second)
}
