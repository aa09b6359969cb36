package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func newQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	q, err := New(context.Background(), Options{Addr: srv.Addr(), PoolSize: 2, ConnectAttempts: 1, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q, srv
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}
	if n, _ := q.Length(ctx); n != 3 {
		t.Fatalf("length = %d, want 3", n)
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx, time.Second)
		if err != nil || got != want {
			t.Fatalf("Dequeue = %q, %v; want %q", got, err, want)
		}
	}
}

func TestRequeueRunsNext(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, "first")
	q.Enqueue(ctx, "second")
	if err := q.Requeue(ctx, "retry"); err != nil {
		t.Fatal(err)
	}
	got, _ := q.Dequeue(ctx, time.Second)
	if got != "retry" {
		t.Fatalf("requeued job must run next, got %q", got)
	}
}

func TestDequeueTimeout(t *testing.T) {
	q, _ := newQueue(t)
	got, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil || got != "" {
		t.Fatalf("empty queue: got %q, %v", got, err)
	}
}

func TestNewFailsWithoutRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := New(context.Background(), Options{Addr: addr, ConnectAttempts: 1, Logger: zerolog.Nop()})
	if err == nil {
		t.Fatal("expected connection error")
	}
}
