package taskqueue

// SchedQueue is the capability contract a waiting-task container must
// satisfy to be pluggable via WithQueueClass.
//
// Only the scheduler goroutine ever calls these methods, so an
// implementation need not be safe for concurrent use.
type SchedQueue interface {
	// Enqueue inserts e using the container's ordering discipline. The
	// default implementation orders by priority descending, insertion
	// order ascending (stable).
	Enqueue(e *entry)

	// Dequeue removes and returns the head entry, or (nil, false) if the
	// queue is empty.
	Dequeue() (*entry, bool)

	// Filter returns every waiting entry matching pred, without removing
	// any of them. Used by Queue.SizeBy.
	Filter(pred func(*entry) bool) []*entry

	// SetPriority relocates the waiting entry with the given id to a new
	// priority. Returns ErrNotFound if no waiting entry has that id.
	// Running tasks are unaffected: by the time a task is running it has
	// already left this container.
	SetPriority(id ID, priority int) error

	// Size reports the number of waiting entries.
	Size() int
}

// QueueFactory constructs a fresh, empty SchedQueue. The default,
// installed by fillDefaults, is newPriorityQueue.
type QueueFactory func() SchedQueue
