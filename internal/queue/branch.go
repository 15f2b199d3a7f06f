package queue

// Branch pairs a traversal reference (typically a tree node) with the
// lower bound on the distance from the query to anything below it.
type Branch[T any] struct {
	Ref     T
	MinDist float32
}

// BranchQueue is a min-heap of unexplored branches ordered by MinDist.
// Best-first traversal across one or many trees shares a single queue.
type BranchQueue[T any] struct {
	items []Branch[T]
}

// NewBranchQueue initializes a branch queue with the given capacity.
func NewBranchQueue[T any](capacity int) *BranchQueue[T] {
	return &BranchQueue[T]{items: make([]Branch[T], 0, capacity)}
}

// Len returns the number of pending branches.
func (bq *BranchQueue[T]) Len() int { return len(bq.items) }

// Push inserts a branch while maintaining the heap invariant.
func (bq *BranchQueue[T]) Push(b Branch[T]) {
	bq.items = append(bq.items, b)
	i := len(bq.items) - 1
	for i > 0 {
		p := (i - 1) / 2
		if bq.items[i].MinDist >= bq.items[p].MinDist {
			return
		}
		bq.items[i], bq.items[p] = bq.items[p], bq.items[i]
		i = p
	}
}

// Pop removes and returns the branch with the smallest MinDist.
func (bq *BranchQueue[T]) Pop() (Branch[T], bool) {
	n := len(bq.items)
	if n == 0 {
		return Branch[T]{}, false
	}
	root := bq.items[0]
	last := bq.items[n-1]
	bq.items[n-1] = Branch[T]{}
	bq.items = bq.items[:n-1]
	if n-1 > 0 {
		bq.items[0] = last
		bq.siftDown(0)
	}
	return root, true
}

// Reset clears the queue for reuse.
func (bq *BranchQueue[T]) Reset() {
	clear(bq.items)
	bq.items = bq.items[:0]
}

func (bq *BranchQueue[T]) siftDown(i int) {
	n := len(bq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && bq.items[r].MinDist < bq.items[l].MinDist {
			best = r
		}
		if bq.items[best].MinDist >= bq.items[i].MinDist {
			return
		}
		bq.items[i], bq.items[best] = bq.items[best], bq.items[i]
		i = best
	}
}
