package ringlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushAndSnapshotOrder(t *testing.T) {
	l := New[int](3)
	l.Push(1)
	l.Push(2)
	assert.Equal(t, []int{1, 2}, l.Snapshot())
	assert.Equal(t, 2, l.Len())
}

func TestOverflowDropsOldest(t *testing.T) {
	l := New[int](3)
	for i := 1; i <= 5; i++ {
		l.Push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, l.Snapshot())
	assert.Equal(t, 3, l.Len())
}

func TestCapacityBelowOneClampsToOne(t *testing.T) {
	l := New[int](0)
	l.Push(1)
	l.Push(2)
	assert.Equal(t, []int{2}, l.Snapshot())
}
