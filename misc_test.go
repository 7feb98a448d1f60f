package taskqueue

import (
	"context"
	"testing"
	"time"
)

func TestSetConcurrencyValidatesAndApplies(t *testing.T) {
	q, err := New(WithConcurrency(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Shutdown(context.Background())

	if err := q.SetConcurrency(0); err == nil {
		t.Fatal("SetConcurrency(0) should be rejected")
	}
	if err := q.SetConcurrency(3); err != nil {
		t.Fatalf("SetConcurrency(3): %v", err)
	}
	deadline := time.After(time.Second)
	for q.Concurrency() != 3 {
		select {
		case <-deadline:
			t.Fatalf("Concurrency never reached 3, got %d", q.Concurrency())
		default:
		}
	}
}

func TestSetTimeoutValidatesAndApplies(t *testing.T) {
	q, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Shutdown(context.Background())

	if err := q.SetTimeout(-time.Second); err == nil {
		t.Fatal("SetTimeout(negative) should be rejected")
	}
	if err := q.SetTimeout(50 * time.Millisecond); err != nil {
		t.Fatalf("SetTimeout: %v", err)
	}
	deadline := time.After(time.Second)
	for q.Timeout() != 50*time.Millisecond {
		select {
		case <-deadline:
			t.Fatalf("Timeout never applied, got %v", q.Timeout())
		default:
		}
	}
}

func TestSizeByFiltersWaitingTasks(t *testing.T) {
	q, err := New(WithConcurrency(1), WithPaused())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Shutdown(context.Background())

	_, _ = Add(q, func(context.Context) (int, error) { return 0, nil }, WithPriority(1))
	_, _ = Add(q, func(context.Context) (int, error) { return 0, nil }, WithPriority(9))

	deadline := time.After(time.Second)
	for q.Size() != 2 {
		select {
		case <-deadline:
			t.Fatalf("size never reached 2")
		default:
		}
	}

	n := q.SizeBy(func(ti TaskInfo) bool { return ti.Priority > 5 })
	if n != 1 {
		t.Fatalf("SizeBy = %d; want 1", n)
	}
}

func TestOnSizeLessThan(t *testing.T) {
	q, err := New(WithConcurrency(1), WithPaused())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Shutdown(context.Background())

	_, _ = Add(q, func(context.Context) (int, error) { return 0, nil })
	_, _ = Add(q, func(context.Context) (int, error) { return 0, nil })

	waiter := q.OnSizeLessThan(2)
	select {
	case <-waiter:
		t.Fatal("OnSizeLessThan(2) should not resolve while size == 2")
	case <-time.After(50 * time.Millisecond):
	}

	q.Start()
	select {
	case <-waiter:
	case <-time.After(time.Second):
		t.Fatal("OnSizeLessThan(2) never resolved once size dropped below 2")
	}
}

func TestPlainAddWithoutValue(t *testing.T) {
	q, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Shutdown(context.Background())

	ran := make(chan struct{})
	q.Add(func(context.Context) error {
		close(ran)
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("plain Add task never ran")
	}
}
