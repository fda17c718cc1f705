package limiter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MaheshIMDev/Flick/cache"
	"github.com/MaheshIMDev/Flick/limiter"
)

func TestFixedWindowLimit(t *testing.T) {
	m := limiter.NewManager(cache.NewMemory(), &limiter.FixedWindowStrategy{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !m.Allow(ctx, "alice", "send_message", 3, time.Minute) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if m.Allow(ctx, "alice", "send_message", 3, time.Minute) {
		t.Fatal("request above the limit should be rejected")
	}

	// 各动作、各用户独立计数
	if !m.Allow(ctx, "alice", "call_offer", 3, time.Minute) {
		t.Fatal("different action should have its own window")
	}
	if !m.Allow(ctx, "bob", "send_message", 3, time.Minute) {
		t.Fatal("different user should have their own window")
	}
}

func TestFixedWindowReset(t *testing.T) {
	m := limiter.NewManager(cache.NewMemory(), &limiter.FixedWindowStrategy{})
	ctx := context.Background()

	if !m.Allow(ctx, "alice", "send_message", 1, 20*time.Millisecond) {
		t.Fatal("first request should be allowed")
	}
	if m.Allow(ctx, "alice", "send_message", 1, 20*time.Millisecond) {
		t.Fatal("second request in the window should be rejected")
	}

	time.Sleep(40 * time.Millisecond)
	if !m.Allow(ctx, "alice", "send_message", 1, 20*time.Millisecond) {
		t.Fatal("window expired, counter should reset")
	}
}

// incrFailStore 让计数操作失败，验证放行策略
type incrFailStore struct {
	*cache.Memory
}

func (incrFailStore) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("store down")
}

func TestFailOpenOnStoreError(t *testing.T) {
	m := limiter.NewManager(incrFailStore{cache.NewMemory()}, &limiter.FixedWindowStrategy{})

	// 限流器故障时不能断掉消息链路
	for i := 0; i < 10; i++ {
		if !m.Allow(context.Background(), "alice", "send_message", 1, time.Minute) {
			t.Fatal("limiter must fail open when the store is unavailable")
		}
	}
}
