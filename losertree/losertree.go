// Package losertree implements the loser-tree k-way merge primitive
// spec.md §1 names as an external collaborator ("the loser-tree and
// multiway-merge primitives used to merge k already-sorted sequences").
// It fills the same role as the heap-based selection structure of
// _examples/lanrat-extsort/queue/priority_queue.go, but selects among a
// fixed set of *sequences* rather than a dynamic set of pushed values:
// each sequence is replenished in place after it yields its current head
// (spec.md §4.2 step 7, §9 "Parallel vs. native merge").
package losertree

import "container/heap"

// Sequence is one of the k inputs a Tree merges. A run cursor backed by
// the merger's prefetcher (spec.md §4.2 step 7) implements this.
type Sequence[E any] interface {
	// Empty reports whether the sequence has no more real elements.
	Empty() bool
	// Current returns the sequence's current head element.
	Current() E
	// Advance moves the sequence to its next element.
	Advance()
}

// Tree is a k-way merge frontier: repeated calls to Next return the
// overall minimum across all k sequences and advance the sequence it came
// from. It is built on container/heap the same way
// _examples/lanrat-extsort/queue/priority_queue.go builds its priority
// queue, specialized so the heap holds sequence indices instead of
// arbitrary pushed values, and lazily drops a sequence from the heap once
// it empties instead of requiring the caller to pop-then-reinsert.
type Tree[E any] struct {
	less func(a, b E) bool
	seqs []Sequence[E]
	h    seqHeap
}

// New builds a loser tree over seqs using less as the strict weak order.
// Every non-empty sequence in seqs must already be primed (Current valid)
// before the first call to Next.
func New[E any](less func(a, b E) bool, seqs []Sequence[E]) *Tree[E] {
	t := &Tree[E]{less: less, seqs: seqs}
	t.h.less = func(i, j int) bool { return t.less(t.seqs[i].Current(), t.seqs[j].Current()) }
	for i, s := range seqs {
		if !s.Empty() {
			t.h.idx = append(t.h.idx, i)
		}
	}
	heap.Init(&t.h)
	return t
}

// Empty reports whether every sequence is exhausted.
func (t *Tree[E]) Empty() bool {
	return t.h.Len() == 0
}

// Next returns the current minimum across all sequences and advances the
// sequence it came from. It must not be called when Empty.
func (t *Tree[E]) Next() E {
	winner := t.h.idx[0]
	v := t.seqs[winner].Current()
	t.seqs[winner].Advance()
	if t.seqs[winner].Empty() {
		heap.Pop(&t.h)
	} else {
		heap.Fix(&t.h, 0)
	}
	return v
}

// PopN pulls up to n elements off the tree, stopping early if it becomes
// Empty first. This is the loser-tree side of spec.md §4.2.2's "native
// mode: ask the loser tree for min(B, remaining) elements in one call".
func (t *Tree[E]) PopN(n int, dst []E) []E {
	for i := 0; i < n && !t.Empty(); i++ {
		dst = append(dst, t.Next())
	}
	return dst
}

// seqHeap is the container/heap.Interface implementation over sequence
// indices, mirroring the structure of
// _examples/lanrat-extsort/queue/priority_queue.go's innerPriorityQueue.
type seqHeap struct {
	idx  []int
	less func(i, j int) bool
}

func (h *seqHeap) Len() int            { return len(h.idx) }
func (h *seqHeap) Less(i, j int) bool  { return h.less(h.idx[i], h.idx[j]) }
func (h *seqHeap) Swap(i, j int)       { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *seqHeap) Push(x any)          { h.idx = append(h.idx, x.(int)) }
func (h *seqHeap) Pop() any {
	old := h.idx
	n := len(old)
	v := old[n-1]
	h.idx = old[:n-1]
	return v
}
