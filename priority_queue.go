package taskqueue

import "container/heap"

const initialQueueCap = 64

// priorityQueue is the default SchedQueue: a binary max-heap ordered by
// priority descending, insertion order ascending among ties, plus an id
// index so SetPriority can locate a waiting entry in O(1) before
// re-enqueuing it.
type priorityQueue struct {
	h       entryHeap
	byID    map[ID]*entry
	nextSeq uint64
}

func newPriorityQueue() SchedQueue {
	q := &priorityQueue{
		h:    make(entryHeap, 0, initialQueueCap),
		byID: make(map[ID]*entry),
	}
	heap.Init(&q.h)
	return q
}

func (q *priorityQueue) Enqueue(e *entry) {
	e.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, e)
	q.byID[e.id] = e
}

func (q *priorityQueue) Dequeue() (*entry, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	e := heap.Pop(&q.h).(*entry)
	delete(q.byID, e.id)
	return e, true
}

func (q *priorityQueue) Filter(pred func(*entry) bool) []*entry {
	var out []*entry
	for _, e := range q.h {
		if pred == nil || pred(e) {
			out = append(out, e)
		}
	}
	return out
}

func (q *priorityQueue) SetPriority(id ID, priority int) error {
	e, ok := q.byID[id]
	if !ok {
		return ErrNotFound
	}
	heap.Remove(&q.h, e.heapIndex)
	e.priority = priority
	// Re-enqueue through the same path as a fresh insertion, so its
	// stability tie-break is "now", not its original insertion time.
	e.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, e)
	return nil
}

func (q *priorityQueue) Size() int { return q.h.Len() }

// entryHeap implements container/heap.Interface over *entry, ordered by
// priority descending and, for equal priority, sequence ascending.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}
