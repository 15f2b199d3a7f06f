package queue

// Item represents a candidate in a result priority queue.
type Item struct {
	ID       uint32  // Dataset row index of the candidate.
	Distance float32 // Distance to the query; the heap priority.
}

// less orders items by ascending (Distance, ID). The ID tie-break makes
// search results deterministic for duplicate points.
func less(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// PriorityQueue is a binary max-heap of candidates, rooted at the worst
// (largest) item so bounded best-k collection can evict in O(log n).
// Value-based storage keeps the hot search path allocation-free after
// warmup.
type PriorityQueue struct {
	items []Item
}

// NewMax initializes a max-heap with the given capacity.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{items: make([]Item, 0, capacity)}
}

// Len returns the number of elements in the queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Top returns the root element without removing it.
func (pq *PriorityQueue) Top() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) Push(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// Pop removes and returns the root element.
func (pq *PriorityQueue) Pop() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items[n-1] = Item{}
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// Reset clears the queue for reuse without releasing the backing slice.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

// cmp reports whether items[i] outranks items[j] toward the root, i.e.
// compares greater under the (Distance, ID) order.
func (pq *PriorityQueue) cmp(i, j int) bool {
	return less(pq.items[j], pq.items[i])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.cmp(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && pq.cmp(r, l) {
			best = r
		}
		if !pq.cmp(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}
