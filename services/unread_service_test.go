package services_test

import (
	"context"
	"testing"

	"github.com/MaheshIMDev/Flick/cache"
	"github.com/MaheshIMDev/Flick/services"
)

func TestUnreadCounting(t *testing.T) {
	svc := services.NewUnreadService(cache.NewMemory())
	ctx := context.Background()

	if n := svc.Count(ctx, "alice", "conv-1"); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}

	svc.Incr(ctx, "alice", "conv-1")
	svc.Incr(ctx, "alice", "conv-1")
	svc.Incr(ctx, "alice", "conv-2")

	if n := svc.Count(ctx, "alice", "conv-1"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	if n := svc.Count(ctx, "alice", "conv-2"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}

	svc.Clear(ctx, "alice", "conv-1")
	if n := svc.Count(ctx, "alice", "conv-1"); n != 0 {
		t.Fatalf("count after clear = %d, want 0", n)
	}
	if n := svc.Count(ctx, "alice", "conv-2"); n != 1 {
		t.Fatalf("clear must not touch other conversations, count = %d", n)
	}
}

func TestOfflineMessageQueue(t *testing.T) {
	svc := services.NewUnreadService(cache.NewMemory())
	ctx := context.Background()

	svc.QueueMessage(ctx, "conv-1", `{"id":"m1"}`)
	svc.QueueMessage(ctx, "conv-1", `{"id":"m2"}`)

	msgs := svc.QueuedMessages(ctx, "conv-1")
	if len(msgs) != 2 {
		t.Fatalf("queued = %d, want 2", len(msgs))
	}
	// RPush 保序
	if msgs[0] != `{"id":"m1"}` || msgs[1] != `{"id":"m2"}` {
		t.Fatalf("queue order broken: %v", msgs)
	}

	if msgs := svc.QueuedMessages(ctx, "conv-2"); len(msgs) != 0 {
		t.Fatalf("empty queue should yield nothing, got %v", msgs)
	}
}

func TestUnreadDegradedIsNoop(t *testing.T) {
	svc := services.NewUnreadService(brokenStore{})
	ctx := context.Background()

	svc.Incr(ctx, "alice", "conv-1")
	if n := svc.Count(ctx, "alice", "conv-1"); n != 0 {
		t.Fatalf("degraded count = %d, want 0", n)
	}
	svc.QueueMessage(ctx, "conv-1", `{"id":"m1"}`)
	if msgs := svc.QueuedMessages(ctx, "conv-1"); msgs != nil {
		t.Fatalf("degraded queue = %v, want nil", msgs)
	}
}
