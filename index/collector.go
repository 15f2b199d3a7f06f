package index

import (
	"math"

	"github.com/hupe1980/flanngo/internal/queue"
)

// Collector accumulates search candidates with a bounded max-heap. It
// serves both k-NN (keep best k) and radius (keep all within radius, up
// to a cap) searches so tree traversals share one code path.
type Collector struct {
	top        *queue.PriorityQueue
	limit      int
	radius     float32
	radiusMode bool
}

// NewKNNCollector returns a collector keeping the best k candidates.
func NewKNNCollector(k int) *Collector {
	return &Collector{top: queue.NewMax(k), limit: k, radius: float32(math.Inf(1))}
}

// NewRadiusCollector returns a collector keeping candidates within radius
// (inclusive), capped at max entries (0 or negative = uncapped up to n).
func NewRadiusCollector(radius float32, max, n int) *Collector {
	if max <= 0 || max > n {
		max = n
	}
	return &Collector{top: queue.NewMax(max), limit: max, radius: radius, radiusMode: true}
}

// Offer considers a candidate.
func (c *Collector) Offer(id uint32, d float32) {
	if c.radiusMode && d > c.radius {
		return
	}
	pushCandidate(c.top, c.limit, id, d)
}

// Bound returns the pruning bound: branches whose lower-bound distance
// exceeds it cannot contribute. For k-NN this is the current k-th best
// distance (infinite while the heap is not full); for radius it is the
// radius (tightened once the cap fills up).
func (c *Collector) Bound() float32 {
	if c.top.Len() < c.limit {
		if c.radiusMode {
			return c.radius
		}
		return float32(math.Inf(1))
	}
	worst, _ := c.top.Top()
	return worst.Distance
}

// Full reports whether the collector holds limit candidates.
func (c *Collector) Full() bool { return c.top.Len() >= c.limit }

// Len returns the number of accumulated candidates.
func (c *Collector) Len() int { return c.top.Len() }

// Results drains the collector ascending by (distance, row index).
// The collector is empty afterwards.
func (c *Collector) Results() []SearchResult {
	return DrainAscending(c.top)
}
