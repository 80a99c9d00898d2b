package router

import (
	"container/heap"
	"sort"
)

// BoundedHeap retains the k best items pushed into it. The root of the
// underlying heap is the worst retained item, so a push costs O(log k).
// Ties are broken by insertion order: earlier wins.
type BoundedHeap[T any] struct {
	k      int
	better func(a, b T) bool
	h      boundedItems[T]
	seq    uint64
}

func NewBoundedHeap[T any](k int, better func(a, b T) bool) *BoundedHeap[T] {
	if k < 1 {
		k = 1
	}
	bh := &BoundedHeap[T]{k: k, better: better}
	bh.h.better = better
	return bh
}

type boundedItem[T any] struct {
	value T
	seq   uint64
}

type boundedItems[T any] struct {
	items  []boundedItem[T]
	better func(a, b T) bool
}

// outranks reports whether a should be kept over b.
func (h *boundedItems[T]) outranks(a, b boundedItem[T]) bool {
	if h.better(a.value, b.value) {
		return true
	}
	if h.better(b.value, a.value) {
		return false
	}
	return a.seq < b.seq
}

func (h *boundedItems[T]) Len() int { return len(h.items) }

// Less puts the worst item at the root.
func (h *boundedItems[T]) Less(i, j int) bool { return h.outranks(h.items[j], h.items[i]) }

func (h *boundedItems[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *boundedItems[T]) Push(x any) { h.items = append(h.items, x.(boundedItem[T])) }

func (h *boundedItems[T]) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items = h.items[:n-1]
	return it
}

// Push offers v. It reports whether v was retained.
func (b *BoundedHeap[T]) Push(v T) bool {
	it := boundedItem[T]{value: v, seq: b.seq}
	b.seq++
	if b.h.Len() < b.k {
		heap.Push(&b.h, it)
		return true
	}
	if !b.h.outranks(it, b.h.items[0]) {
		return false
	}
	b.h.items[0] = it
	heap.Fix(&b.h, 0)
	return true
}

func (b *BoundedHeap[T]) Len() int {
	return b.h.Len()
}

// Sorted returns the retained items best first without draining the heap.
func (b *BoundedHeap[T]) Sorted() []T {
	items := make([]boundedItem[T], len(b.h.items))
	copy(items, b.h.items)
	sort.Slice(items, func(i, j int) bool { return b.h.outranks(items[i], items[j]) })
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.value
	}
	return out
}
