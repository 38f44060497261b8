package conflict

import "container/heap"

// conflictHeap is the container/heap.Interface implementation; Queue wraps
// it with a typed Push/Pop API so callers never see container/heap.
type conflictHeap []Conflict

func (h conflictHeap) Len() int { return len(h) }

func (h conflictHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Type.priority() != b.Type.priority() {
		return a.Type.priority() < b.Type.priority()
	}
	if da, db := a.depth(), b.depth(); da != db {
		return da < db
	}
	return a.path() < b.path()
}

func (h conflictHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *conflictHeap) Push(x any) { *h = append(*h, x.(Conflict)) }

func (h *conflictHeap) Pop() any {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

// Queue orders pending Conflicts by (type priority, path depth, path), the
// ranking spec §4.4 requires so higher-impact, closer-to-root conflicts
// resolve first. It mirrors the teacher's std::priority_queue wrapper,
// built on container/heap.
type Queue struct {
	h    conflictHeap
	seen map[Type]int
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	q := &Queue{seen: make(map[Type]int)}
	heap.Init(&q.h)
	return q
}

// Push enqueues c, maintaining heap order.
func (q *Queue) Push(c Conflict) {
	heap.Push(&q.h, c)
	q.seen[c.Type]++
}

// Pop removes and returns the highest-priority Conflict, or ok=false if
// empty.
func (q *Queue) Pop() (Conflict, bool) {
	if q.h.Len() == 0 {
		return Conflict{}, false
	}
	c := heap.Pop(&q.h).(Conflict)
	q.seen[c.Type]--
	return c, true
}

// Len reports how many conflicts are queued.
func (q *Queue) Len() int { return q.h.Len() }

// HasType reports whether a conflict of the given type is currently queued.
func (q *Queue) HasType(t Type) bool { return q.seen[t] > 0 }
