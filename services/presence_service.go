package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/MaheshIMDev/Flick/cache"
	"github.com/MaheshIMDev/Flick/models"
)

// 在线标记的默认有效期，靠心跳续期
const PresenceTTL = 30 * time.Second

// PresenceService 维护在线状态和最后在线时间。正常走 Redis（带 TTL），
// Redis 不可用时降级读写 users 表。降级路径没有 TTL，客户端异常断开后
// 可能一直显示在线，直到下一次缓存写入纠正——这是接受的弱保证，不是 bug。
// 降级逻辑集中在这里，调用方不感知。
type PresenceService struct {
	store cache.Store
	db    *gorm.DB
}

func NewPresenceService(store cache.Store, db *gorm.DB) *PresenceService {
	return &PresenceService{store: store, db: db}
}

func onlineKey(userID string) string   { return fmt.Sprintf("user:%s:online", userID) }
func lastSeenKey(userID string) string { return fmt.Sprintf("user:%s:last_seen", userID) }

func (s *PresenceService) SetOnline(ctx context.Context, userID string, ttl time.Duration) error {
	now := time.Now()
	err := s.store.Set(ctx, onlineKey(userID), "true", ttl)
	if err == nil {
		err = s.store.Set(ctx, lastSeenKey(userID), strconv.FormatInt(now.UnixMilli(), 10), 0)
	}
	if err != nil {
		log.Printf("Redis setOnline failed, using DB fallback: %v", err)
		return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]interface{}{"is_online": true, "last_seen_at": now}).Error
	}
	return nil
}

func (s *PresenceService) SetOffline(ctx context.Context, userID string) error {
	now := time.Now()
	err := s.store.Del(ctx, onlineKey(userID))
	if err == nil {
		err = s.store.Set(ctx, lastSeenKey(userID), strconv.FormatInt(now.UnixMilli(), 10), 0)
	}
	if err != nil {
		log.Printf("Redis setOffline failed, using DB fallback: %v", err)
		return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]interface{}{"is_online": false, "last_seen_at": now}).Error
	}
	return nil
}

func (s *PresenceService) IsOnline(ctx context.Context, userID string) (bool, error) {
	val, err := s.store.Get(ctx, onlineKey(userID))
	if err == nil {
		return val == "true", nil
	}
	if err == cache.ErrNil {
		return false, nil
	}
	// 缓存不可用，读用户表
	var user models.User
	if dbErr := s.db.WithContext(ctx).Select("is_online").First(&user, "id = ?", userID).Error; dbErr != nil {
		if dbErr == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, dbErr
	}
	return user.IsOnline, nil
}

// LastSeen 返回最后在线时间的 unix 毫秒，没有记录时返回 0
func (s *PresenceService) LastSeen(ctx context.Context, userID string) (int64, error) {
	val, err := s.store.Get(ctx, lastSeenKey(userID))
	if err == nil {
		ms, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr != nil {
			return 0, parseErr
		}
		return ms, nil
	}
	if err == cache.ErrNil {
		return 0, nil
	}
	var user models.User
	if dbErr := s.db.WithContext(ctx).Select("last_seen_at").First(&user, "id = ?", userID).Error; dbErr != nil {
		if dbErr == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, dbErr
	}
	if user.LastSeenAt == nil {
		return 0, nil
	}
	return user.LastSeenAt.UnixMilli(), nil
}
