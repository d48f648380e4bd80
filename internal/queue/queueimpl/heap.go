package queueimpl

import (
	"time"

	"github.com/orgball2608/video-distributor/internal/domain"
)

// item is one queued post. effectiveAt is the schedule time, or the enqueue
// time when no schedule was given, so "absent sorts as now" stays
// deterministic. seq is the FIFO tie-break.
type item struct {
	post        *domain.Post
	effectiveAt time.Time
	seq         uint64
}

type postHeap []*item

func (h postHeap) Len() int { return len(h) }

func (h postHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.post.Priority != b.post.Priority {
		return a.post.Priority < b.post.Priority
	}
	if !a.effectiveAt.Equal(b.effectiveAt) {
		return a.effectiveAt.Before(b.effectiveAt)
	}
	return a.seq < b.seq
}

func (h postHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *postHeap) Push(x any) {
	*h = append(*h, x.(*item))
}

func (h *postHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
