package ranker

import (
	"container/heap"
	"slices"
)

// Collector keeps the best k documents offered to it. It is not safe for
// concurrent use; give each worker its own and Merge the results.
type Collector struct {
	k int
	h docHeap
}

func NewCollector(k int) *Collector {
	return &Collector{k: k, h: make(docHeap, 0, k)}
}

func (c *Collector) Offer(doc ScoredDoc) {
	if c.k <= 0 {
		return
	}
	if c.h.Len() < c.k {
		heap.Push(&c.h, doc)
		return
	}
	if Before(doc, c.h[0]) {
		c.h[0] = doc
		heap.Fix(&c.h, 0)
	}
}

func (c *Collector) Len() int { return c.h.Len() }

// Results returns the collected documents best first.
func (c *Collector) Results() []ScoredDoc {
	out := slices.Clone([]ScoredDoc(c.h))
	slices.SortFunc(out, compare)
	return out
}

// Merge combines per-worker partial lists into one ranked top-k list.
func Merge(partials [][]ScoredDoc, k int) ([]RankedDoc, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	c := NewCollector(k)
	for _, docs := range partials {
		for _, doc := range docs {
			c.Offer(doc)
		}
	}
	return assignRanks(c.Results()), nil
}

// docHeap is a min-heap on rank order: the worst kept document is at the root.
type docHeap []ScoredDoc

func (h docHeap) Len() int { return len(h) }

func (h docHeap) Less(i, j int) bool { return Before(h[j], h[i]) }

func (h docHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *docHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *docHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
