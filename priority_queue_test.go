package taskqueue

import "testing"

func drainAll(q SchedQueue) []ID {
	var out []ID
	for {
		e, ok := q.Dequeue()
		if !ok {
			return out
		}
		out = append(out, e.id)
	}
}

func TestPriorityQueueOrdersByPriorityThenInsertion(t *testing.T) {
	q := newPriorityQueue()
	q.Enqueue(&entry{id: "a", priority: 0, heapIndex: -1})
	q.Enqueue(&entry{id: "b", priority: 5, heapIndex: -1})
	q.Enqueue(&entry{id: "c", priority: 5, heapIndex: -1})
	q.Enqueue(&entry{id: "d", priority: -1, heapIndex: -1})

	got := drainAll(q)
	want := []ID{"b", "c", "a", "d"}
	if len(got) != len(want) {
		t.Fatalf("order = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v; want %v", got, want)
		}
	}
}

func TestPriorityQueueSetPriorityReordersAndResetsTieBreak(t *testing.T) {
	q := newPriorityQueue()
	q.Enqueue(&entry{id: "first", priority: 0, heapIndex: -1})
	q.Enqueue(&entry{id: "second", priority: 0, heapIndex: -1})

	if err := q.SetPriority("first", 0); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}

	got := drainAll(q)
	if got[0] != "second" || got[1] != "first" {
		t.Fatalf("order after SetPriority = %v; want [second first]", got)
	}
}

func TestPriorityQueueSetPriorityUnknownID(t *testing.T) {
	q := newPriorityQueue()
	if err := q.SetPriority("missing", 3); err != ErrNotFound {
		t.Fatalf("SetPriority on unknown id = %v; want ErrNotFound", err)
	}
}

func TestPriorityQueueFilter(t *testing.T) {
	q := newPriorityQueue()
	q.Enqueue(&entry{id: "a", priority: 1, heapIndex: -1})
	q.Enqueue(&entry{id: "b", priority: 2, heapIndex: -1})

	got := q.Filter(func(e *entry) bool { return e.priority > 1 })
	if len(got) != 1 || got[0].id != "b" {
		t.Fatalf("Filter = %v; want just b", got)
	}
	if q.Size() != 2 {
		t.Fatalf("Filter must not remove entries; size = %d", q.Size())
	}
}
