package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/railsim/utils/container"
)

func TestListInit(t *testing.T) {
	l := &container.List[string]{}
	assert.Nil(t, l.First())
	assert.Nil(t, l.Last())
	assert.Nil(t, l.PopFront())
	assert.Equal(t, 0, l.Len())
}

func TestListOperation(t *testing.T) {
	l := &container.List[string]{}

	// ^, 1, ^
	n1 := container.NewNode(1, "n1")
	l.PushBack(n1)
	// ^, 2, 1, ^
	n2 := container.NewNode(2, "n2")
	l.PushFront(n2)
	// ^, 3, 2, 1, ^
	n3 := container.NewNode(3, "n3")
	n2.InsertBefore(n3)
	// ^, 3, 2, 1, 4, ^
	n4 := container.NewNode(4, "n4")
	n1.InsertAfter(n4)
	assert.Equal(t, 4, l.Len())

	n := l.First()
	assert.Equal(t, n3, n)
	n = n.Next()
	assert.Equal(t, n2, n)
	n = n.Next()
	assert.Equal(t, n1, n)
	assert.Equal(t, n, n.Next().Prev())
	assert.Equal(t, n, n.Prev().Next())
	n = n.Next()
	assert.Equal(t, n4, n)
	assert.Equal(t, n4, l.Last())

	// head, 0, 3, 2, 1, 4, tail
	n0 := container.NewNode(0, "n0")
	l.PushFront(n0)
	unsorted := l.PopUnsorted()
	assert.ElementsMatch(t, []*container.ListNode[string]{n2, n1}, unsorted)
	assert.Equal(t, 3, l.Len())

	l.Merge(unsorted)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, l.Keys())

	l.Remove(n4)
	assert.Equal(t, n3, l.Last())
	assert.Equal(t, 4, l.Len())
	assert.Nil(t, n4.Parent())
}

func TestListStableTies(t *testing.T) {
	l := &container.List[string]{}
	l.Insert(container.NewNode(10, "a"))
	l.Insert(container.NewNode(5, "b"))
	l.Insert(container.NewNode(10, "c"))
	l.Insert(container.NewNode(0, "d"))
	assert.Equal(t, []string{"d", "b", "a", "c"}, l.Values())

	l.Merge([]*container.ListNode[string]{
		container.NewNode(10, "e"),
		container.NewNode(5, "f"),
		container.NewNode(10, "g"),
	})
	assert.Equal(t, []string{"d", "b", "f", "a", "c", "e", "g"}, l.Values())
}

func TestListRemoveIf(t *testing.T) {
	l := &container.List[int]{}
	for i := range 6 {
		l.PushBack(container.NewNode(float64(i), i))
	}
	removed := l.RemoveIf(func(v int) bool { return v%2 == 1 })
	assert.Len(t, removed, 3)
	assert.Equal(t, 1, removed[0].Value)
	assert.Equal(t, []int{0, 2, 4}, l.Values())

	front := l.PopFront()
	assert.Equal(t, 0, front.Value)
	assert.Equal(t, 2, l.Len())
}
