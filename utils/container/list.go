package container

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "container")

// ListNode 双向链表中的节点
// 功能：表示双向链表中的一个节点，S为排序键
type ListNode[T any] struct {
	parent     *List[T]     // 所属链表
	prev, next *ListNode[T] // 前驱和后继节点
	S          float64      // 键值（时间、位置等）
	Value      T
}

// NewNode 创建游离节点
func NewNode[T any](s float64, value T) *ListNode[T] {
	return &ListNode[T]{S: s, Value: value}
}

func (n *ListNode[T]) String() string {
	return fmt.Sprintf("Node{Key:%v, Value:%+v}", n.S, n.Value)
}

func (n *ListNode[T]) Prev() *ListNode[T] {
	return n.prev
}

func (n *ListNode[T]) Next() *ListNode[T] {
	return n.next
}

func (n *ListNode[T]) Parent() *List[T] {
	return n.parent
}

// InsertBefore 在节点前插入新节点
func (n *ListNode[T]) InsertBefore(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("insert node who already in list")
	}
	add.parent = n.parent
	add.next = n
	add.prev = n.prev
	n.prev = add
	if add.prev != nil {
		add.prev.next = add
	} else {
		add.parent.head = add
	}
	n.parent.length++
}

// InsertAfter 在节点后插入新节点
func (n *ListNode[T]) InsertAfter(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("insert node who already in list")
	}
	add.parent = n.parent
	add.prev = n
	add.next = n.next
	n.next = add
	if add.next != nil {
		add.next.prev = add
	} else {
		add.parent.tail = add
	}
	n.parent.length++
}

// List 按键值升序的双向链表
// 功能：乘客候车队列、发车计划表与移动闭塞占用列表的公共容器
// 说明：相同键值的节点保持插入顺序（稳定）
type List[T any] struct {
	ID         string
	head, tail *ListNode[T]
	length     int
}

func (l *List[T]) String() string {
	return fmt.Sprintf("List{ID:%v}", l.ID)
}

// Keys 获取双向链表中所有节点的键值
func (l *List[T]) Keys() []float64 {
	keys := make([]float64, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		keys = append(keys, node.S)
	}
	return keys
}

// Values 获取双向链表中所有节点的值
func (l *List[T]) Values() []T {
	values := make([]T, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		values = append(values, node.Value)
	}
	return values
}

func (l *List[T]) Len() int {
	return l.length
}

// PushFront 向链表头部插入节点
func (l *List[T]) PushFront(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("push front node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.head == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertBefore中处理
		l.head.InsertBefore(add)
	}
}

// PushBack 向链表尾部插入节点
func (l *List[T]) PushBack(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("push back node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.tail == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertAfter中处理
		l.tail.InsertAfter(add)
	}
}

// Remove 从链表中移除节点
func (l *List[T]) Remove(node *ListNode[T]) {
	if node.parent != l {
		log.Panic("remove node from wrong list")
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.parent = nil
	l.length--
}

func (l *List[T]) First() *ListNode[T] {
	return l.head
}

func (l *List[T]) Last() *ListNode[T] {
	return l.tail
}

// PopFront 移除并返回头部节点，链表为空时返回nil
func (l *List[T]) PopFront() *ListNode[T] {
	node := l.head
	if node != nil {
		l.Remove(node)
	}
	return node
}

// Insert 按键值插入单个节点
// 算法说明：从尾部向前找到第一个键值不大于add.S的节点并插入其后，
// 因此相同键值的节点按插入先后排列
func (l *List[T]) Insert(add *ListNode[T]) {
	node := l.tail
	for node != nil && node.S > add.S {
		node = node.prev
	}
	if node == nil {
		l.PushFront(add)
	} else {
		node.InsertAfter(add)
	}
}

// RemoveIf 移除所有满足条件的节点，按链表顺序返回被移除的节点
func (l *List[T]) RemoveIf(pred func(T) bool) (removed []*ListNode[T]) {
	for node := l.head; node != nil; {
		next := node.next
		if pred(node.Value) {
			l.Remove(node)
			removed = append(removed, node)
		}
		node = next
	}
	return removed
}

// PopUnsorted 移除逆序节点
// 功能：移除链表中键值逆序的节点（前驱节点的键值大于当前节点）
// 返回：被移除的逆序节点数组
func (l *List[T]) PopUnsorted() (unsorted []*ListNode[T]) {
	for node := l.head; node != nil; {
		next := node.next
		if node.prev != nil && node.prev.S > node.S {
			l.Remove(node)
			unsorted = append(unsorted, node)
		}
		node = next
	}
	return unsorted
}

// Merge 批量插入节点
// 算法说明：
// 1. 对待插入节点做稳定排序
// 2. 归并：每个节点插入到所有键值不大于它的已有节点之后
func (l *List[T]) Merge(adds []*ListNode[T]) {
	slices.SortStableFunc(adds, func(a, b *ListNode[T]) int {
		return cmp.Compare(a.S, b.S)
	})
	node := l.head
	for _, add := range adds {
		for node != nil && node.S <= add.S {
			node = node.next
		}
		if node != nil {
			node.InsertBefore(add)
		} else {
			l.PushBack(add)
		}
	}
}
