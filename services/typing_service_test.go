package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/MaheshIMDev/Flick/cache"
	"github.com/MaheshIMDev/Flick/services"
)

func TestTypingStartStop(t *testing.T) {
	svc := services.NewTypingService(cache.NewMemory())
	ctx := context.Background()

	svc.Start(ctx, "conv-1", "alice")
	svc.Start(ctx, "conv-1", "bob")
	svc.Start(ctx, "conv-2", "carol")

	users := svc.Typing(ctx, "conv-1")
	if len(users) != 2 {
		t.Fatalf("typing users = %v, want alice and bob", users)
	}

	svc.Stop(ctx, "conv-1", "alice")
	users = svc.Typing(ctx, "conv-1")
	if len(users) != 1 || users[0] != "bob" {
		t.Fatalf("typing users = %v, want [bob]", users)
	}
}

func TestTypingAutoExpiry(t *testing.T) {
	svc := services.NewTypingService(cache.NewMemory())
	svc.SetTTL(20 * time.Millisecond)
	ctx := context.Background()

	// 客户端忘发 stop，标记也要自己消失
	svc.Start(ctx, "conv-1", "alice")
	time.Sleep(40 * time.Millisecond)

	if users := svc.Typing(ctx, "conv-1"); len(users) != 0 {
		t.Fatalf("typing users = %v, want expired", users)
	}
}

func TestTypingDegradedReturnsNothing(t *testing.T) {
	svc := services.NewTypingService(brokenStore{})
	ctx := context.Background()

	// 缓存不可用时只降级，不报错不 panic
	svc.Start(ctx, "conv-1", "alice")
	svc.Stop(ctx, "conv-1", "alice")
	if users := svc.Typing(ctx, "conv-1"); users != nil {
		t.Fatalf("typing users = %v, want nil", users)
	}
}
