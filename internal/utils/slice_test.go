package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	even := Filter([]int{1, 2, 3, 4, 5}, func(n int) bool { return n%2 == 0 })
	assert.Equal(t, []int{2, 4}, even)

	assert.Nil(t, Filter(nil, func(n int) bool { return true }))
	assert.Nil(t, Filter([]int{1, 3}, func(n int) bool { return n%2 == 0 }))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Unique([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, Unique([]string(nil)))
}

func TestChunk(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunks)

	assert.Len(t, Chunk([]int{1, 2}, 10), 1)
	assert.Nil(t, Chunk([]int{1, 2}, 0))
	assert.Nil(t, Chunk([]int(nil), 3))
}
