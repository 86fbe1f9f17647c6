package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/seatalloc/internal/domain/model"
)

func request(id string) Request {
	return model.PassRequest{ID: id, Category: model.CategoryElective, RequestedAt: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, request("p1")); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	got := <-q.Dequeue(dctx)
	if got.ID != "p1" || got.Category != model.CategoryElective {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, request(fmt.Sprintf("p%d", i))); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := q.Enqueue(ctx, request("p2")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	_ = q.Enqueue(ctx, request("a"))
	_ = q.Enqueue(ctx, request("b"))
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Fatal("expected queue to report closed")
	}
	if err := q.Enqueue(ctx, request("c")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}

	var ids []string
	for r := range q.Dequeue(ctx) {
		ids = append(ids, r.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("expected queued requests to drain in order, got %v", ids)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, request("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	select {
	case _, ok := <-q.Dequeue(ctx):
		if ok {
			t.Fatal("expected no request from a cancelled dequeue")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue channel was not closed after cancellation")
	}
}
