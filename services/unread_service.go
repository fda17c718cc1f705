package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/MaheshIMDev/Flick/cache"
)

// 离线消息队列的保留时间，推送分发服务在这个窗口内消费
const notifyQueueTTL = 5 * time.Minute

// UnreadService 维护 (用户, 会话) 未读计数和离线推送队列。
// 缓存挂了全部退化为空操作/零值，消息本身照常投递。
type UnreadService struct {
	store cache.Store
}

func NewUnreadService(store cache.Store) *UnreadService {
	return &UnreadService{store: store}
}

func unreadKey(userID, conversationID string) string {
	return fmt.Sprintf("unread:%s:%s", userID, conversationID)
}

func (s *UnreadService) Incr(ctx context.Context, userID, conversationID string) {
	if _, err := s.store.Incr(ctx, unreadKey(userID, conversationID)); err != nil {
		log.Printf("Redis incrementUnread failed: %v", err)
	}
}

func (s *UnreadService) Count(ctx context.Context, userID, conversationID string) int {
	val, err := s.store.Get(ctx, unreadKey(userID, conversationID))
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}

func (s *UnreadService) Clear(ctx context.Context, userID, conversationID string) {
	if err := s.store.Del(ctx, unreadKey(userID, conversationID)); err != nil {
		log.Printf("Redis clearUnread failed: %v", err)
	}
}

// QueueMessage 把消息 JSON 暂存进会话的离线队列，5 分钟后自动过期
func (s *UnreadService) QueueMessage(ctx context.Context, conversationID, messageJSON string) {
	key := fmt.Sprintf("queue:messages:%s", conversationID)
	if err := s.store.RPush(ctx, key, messageJSON); err != nil {
		log.Printf("Redis queueMessage failed: %v", err)
		return
	}
	if err := s.store.Expire(ctx, key, notifyQueueTTL); err != nil {
		log.Printf("Redis queueMessage expire failed: %v", err)
	}
}

func (s *UnreadService) QueuedMessages(ctx context.Context, conversationID string) []string {
	msgs, err := s.store.LRange(ctx, fmt.Sprintf("queue:messages:%s", conversationID), 0, -1)
	if err != nil {
		return nil
	}
	return msgs
}
