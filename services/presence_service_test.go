package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MaheshIMDev/Flick/cache"
	"github.com/MaheshIMDev/Flick/models"
	"github.com/MaheshIMDev/Flick/services"
)

var errStoreDown = errors.New("store down")

// brokenStore 模拟缓存整体不可用
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error)       { return "", errStoreDown }
func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errStoreDown
}
func (brokenStore) Incr(context.Context, string) (int64, error)          { return 0, errStoreDown }
func (brokenStore) Expire(context.Context, string, time.Duration) error  { return errStoreDown }
func (brokenStore) Del(context.Context, ...string) error                 { return errStoreDown }
func (brokenStore) ScanPrefix(context.Context, string) ([]string, error) { return nil, errStoreDown }
func (brokenStore) SAdd(context.Context, string, ...string) error        { return errStoreDown }
func (brokenStore) SRem(context.Context, string, ...string) error        { return errStoreDown }
func (brokenStore) SMembers(context.Context, string) ([]string, error)   { return nil, errStoreDown }
func (brokenStore) RPush(context.Context, string, string) error          { return errStoreDown }
func (brokenStore) LRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, errStoreDown
}
func (brokenStore) Publish(context.Context, string, string) error { return errStoreDown }
func (brokenStore) Subscribe(context.Context, string) (<-chan string, error) {
	return nil, errStoreDown
}
func (brokenStore) Ping(context.Context) error { return errStoreDown }
func (brokenStore) Close() error               { return nil }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrateAll(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestPresenceOnlineFlip(t *testing.T) {
	svc := services.NewPresenceService(cache.NewMemory(), openTestDB(t))
	ctx := context.Background()

	online, err := svc.IsOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("isOnline: %v", err)
	}
	if online {
		t.Fatal("unknown user should be offline")
	}

	if err := svc.SetOnline(ctx, "alice", services.PresenceTTL); err != nil {
		t.Fatalf("setOnline: %v", err)
	}
	online, err = svc.IsOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("isOnline: %v", err)
	}
	if !online {
		t.Fatal("user should be online after SetOnline")
	}

	lastSeen, err := svc.LastSeen(ctx, "alice")
	if err != nil {
		t.Fatalf("lastSeen: %v", err)
	}
	if lastSeen == 0 {
		t.Fatal("last seen should be recorded")
	}

	if err := svc.SetOffline(ctx, "alice"); err != nil {
		t.Fatalf("setOffline: %v", err)
	}
	online, err = svc.IsOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("isOnline: %v", err)
	}
	if online {
		t.Fatal("user should be offline after SetOffline")
	}
}

func TestPresenceTTLExpiry(t *testing.T) {
	svc := services.NewPresenceService(cache.NewMemory(), openTestDB(t))
	ctx := context.Background()

	if err := svc.SetOnline(ctx, "alice", 20*time.Millisecond); err != nil {
		t.Fatalf("setOnline: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	online, err := svc.IsOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("isOnline: %v", err)
	}
	if online {
		t.Fatal("online flag should expire without heartbeat")
	}
}

func TestPresenceDegradedFallbackToDB(t *testing.T) {
	db := openTestDB(t)
	if err := db.Create(&models.User{ID: "alice", Email: "a@example.com", Username: "alice"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	svc := services.NewPresenceService(brokenStore{}, db)
	ctx := context.Background()

	// 缓存不可用，状态落到 users 表
	if err := svc.SetOnline(ctx, "alice", services.PresenceTTL); err != nil {
		t.Fatalf("setOnline degraded: %v", err)
	}
	online, err := svc.IsOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("isOnline degraded: %v", err)
	}
	if !online {
		t.Fatal("degraded path should read is_online from the users table")
	}

	lastSeen, err := svc.LastSeen(ctx, "alice")
	if err != nil {
		t.Fatalf("lastSeen degraded: %v", err)
	}
	if lastSeen == 0 {
		t.Fatal("degraded last seen should come from the users table")
	}

	if err := svc.SetOffline(ctx, "alice"); err != nil {
		t.Fatalf("setOffline degraded: %v", err)
	}
	online, err = svc.IsOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("isOnline degraded: %v", err)
	}
	if online {
		t.Fatal("degraded path should reflect the offline write")
	}
}
