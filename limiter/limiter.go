package limiter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/MaheshIMDev/Flick/cache"
)

// Strategy 定义限流算法策略接口
type Strategy interface {
	// Allow 检查是否允许通过
	// key: 限流标识
	// limit: 窗口内允许的次数
	// window: 时间窗口
	Allow(ctx context.Context, store cache.Store, key string, limit int, window time.Duration) (bool, error)
}

// Manager 限流管理器。缓存故障时放行（fail open）：
// 核心消息链路的可用性优先于严格限流。
type Manager struct {
	store    cache.Store
	strategy Strategy
}

func NewManager(store cache.Store, strategy Strategy) *Manager {
	return &Manager{
		store:    store,
		strategy: strategy,
	}
}

// Allow 按 (用户, 动作) 判断是否放行
func (m *Manager) Allow(ctx context.Context, userID, action string, limit int, window time.Duration) bool {
	key := fmt.Sprintf("ratelimit:%s:%s", userID, action)
	ok, err := m.strategy.Allow(ctx, m.store, key, limit, window)
	if err != nil {
		log.Printf("Rate limit check failed, allowing: %v", err)
		return true
	}
	return ok
}

// 固定窗口 (Fixed Window / Counter)
type FixedWindowStrategy struct{}

func (s *FixedWindowStrategy) Allow(ctx context.Context, store cache.Store, key string, limit int, window time.Duration) (bool, error) {
	// 自增，窗口内第一次访问（值为1）时设置过期时间
	current, err := store.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if current == 1 {
		if err := store.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}
	return current <= int64(limit), nil
}
