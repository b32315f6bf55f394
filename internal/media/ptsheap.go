package media

import (
	"container/heap"
	"time"
)

// PtsHeap is a min-priority queue of presentation timestamps. Packets arrive
// in decode order; popping yields their timestamps in presentation order.
type PtsHeap struct {
	h tsHeap
}

func (q *PtsHeap) Push(ts time.Duration) {
	heap.Push(&q.h, ts)
}

// Pop removes and returns the earliest timestamp. Panics if empty.
func (q *PtsHeap) Pop() time.Duration {
	return heap.Pop(&q.h).(time.Duration)
}

// Top returns the earliest timestamp without removing it. Panics if empty.
func (q *PtsHeap) Top() time.Duration {
	return q.h[0]
}

func (q *PtsHeap) Len() int {
	return len(q.h)
}

func (q *PtsHeap) IsEmpty() bool {
	return len(q.h) == 0
}

func (q *PtsHeap) Clear() {
	q.h = q.h[:0]
}

type tsHeap []time.Duration

func (h tsHeap) Len() int            { return len(h) }
func (h tsHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h tsHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *tsHeap) Push(x interface{}) { *h = append(*h, x.(time.Duration)) }
func (h *tsHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
