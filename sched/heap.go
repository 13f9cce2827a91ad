package sched

// threadHeap is a container/heap priority queue over ready threads,
// highest Priority first, ties broken by insertion order (seq ascending)
// so that otherwise-identical threads are released deterministically —
// the exact tiebreak doesn't matter, only that it's consistent.
type threadHeap []*Thread

func (h threadHeap) Len() int { return len(h) }

func (h threadHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h threadHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *threadHeap) Push(x any) {
	*h = append(*h, x.(*Thread))
}

func (h *threadHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Peek returns the highest-priority ready thread without removing it, or
// nil if the heap is empty.
func (h threadHeap) Peek() *Thread {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
