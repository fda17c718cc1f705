package services

import (
	"context"
	"fmt"
	"log"

	"github.com/MaheshIMDev/Flick/cache"
)

const (
	// 单用户连接数超过这个值时触发清理
	maxConnsPerUser = 5
	// 清理时保留的最近连接数
	keepConnsPerUser = 3
)

// RegistryService 维护 userID -> 活跃连接集合 的映射，放在共享缓存里，
// 多实例部署时任何一台都能查到用户在哪些连接上。
type RegistryService struct {
	store cache.Store
}

func NewRegistryService(store cache.Store) *RegistryService {
	return &RegistryService{store: store}
}

func socketsKey(userID string) string { return fmt.Sprintf("user:%s:sockets", userID) }

// Register 登记一个新连接。返回值 first 表示这是该用户的第一个连接，
// 由调用方负责触发上线广播。连接过多时先清掉旧的，防止重连风暴把
// 广播目标集合撑爆。
func (s *RegistryService) Register(ctx context.Context, userID, connID string) (first bool, err error) {
	key := socketsKey(userID)

	existing, err := s.store.SMembers(ctx, key)
	if err != nil {
		return false, err
	}
	if len(existing) > maxConnsPerUser {
		stale := existing[:len(existing)-keepConnsPerUser]
		for _, old := range stale {
			if err := s.store.SRem(ctx, key, old); err != nil {
				log.Printf("Failed to evict stale socket %s: %v", old, err)
				continue
			}
			_ = s.store.Del(ctx, fmt.Sprintf("socket:%s", old))
		}
		log.Printf("Cleaned up %d stale sockets for user %s", len(stale), userID)
		existing, err = s.store.SMembers(ctx, key)
		if err != nil {
			return false, err
		}
	}

	if err := s.store.SAdd(ctx, key, connID); err != nil {
		return false, err
	}
	if err := s.store.Set(ctx, fmt.Sprintf("socket:%s", connID), userID, 0); err != nil {
		return false, err
	}
	return len(existing) == 0, nil
}

// Remove 注销连接。返回值 last 表示该用户已经没有任何连接，
// 由调用方负责触发下线广播。
func (s *RegistryService) Remove(ctx context.Context, userID, connID string) (last bool, err error) {
	key := socketsKey(userID)
	if err := s.store.SRem(ctx, key, connID); err != nil {
		return false, err
	}
	if err := s.store.Del(ctx, fmt.Sprintf("socket:%s", connID)); err != nil {
		log.Printf("Failed to delete socket key %s: %v", connID, err)
	}
	remaining, err := s.store.SMembers(ctx, key)
	if err != nil {
		return false, err
	}
	return len(remaining) == 0, nil
}

// Connections 返回用户当前的连接 ID 集合
func (s *RegistryService) Connections(ctx context.Context, userID string) ([]string, error) {
	return s.store.SMembers(ctx, socketsKey(userID))
}

// IsReachable 看用户是否还有活跃连接
func (s *RegistryService) IsReachable(ctx context.Context, userID string) (bool, error) {
	conns, err := s.store.SMembers(ctx, socketsKey(userID))
	if err != nil {
		return false, err
	}
	return len(conns) > 0, nil
}

// UserBySocket 反查连接属于哪个用户
func (s *RegistryService) UserBySocket(ctx context.Context, connID string) (string, error) {
	return s.store.Get(ctx, fmt.Sprintf("socket:%s", connID))
}
