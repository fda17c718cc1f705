package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MaheshIMDev/Flick/cache"
)

// TypingService 维护"正在输入"标记，短 TTL 自动过期，客户端忘发 stop
// 也不会卡住。纯尽力而为：缓存挂了只记日志，不影响消息链路。
type TypingService struct {
	store cache.Store
	ttl   time.Duration
}

func NewTypingService(store cache.Store) *TypingService {
	return &TypingService{store: store, ttl: 5 * time.Second}
}

// SetTTL 调整标记有效期，单测用
func (s *TypingService) SetTTL(ttl time.Duration) {
	s.ttl = ttl
}

func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("typing:%s:%s", conversationID, userID)
}

func (s *TypingService) Start(ctx context.Context, conversationID, userID string) {
	if err := s.store.Set(ctx, typingKey(conversationID, userID), "typing", s.ttl); err != nil {
		log.Printf("Redis setTyping failed: %v", err)
	}
}

func (s *TypingService) Stop(ctx context.Context, conversationID, userID string) {
	if err := s.store.Del(ctx, typingKey(conversationID, userID)); err != nil {
		log.Printf("Redis stopTyping failed: %v", err)
	}
}

// Typing 返回会话里当前还在输入的用户 ID
func (s *TypingService) Typing(ctx context.Context, conversationID string) []string {
	prefix := fmt.Sprintf("typing:%s:", conversationID)
	keys, err := s.store.ScanPrefix(ctx, prefix)
	if err != nil {
		return nil
	}
	users := make([]string, 0, len(keys))
	for _, key := range keys {
		users = append(users, strings.TrimPrefix(key, prefix))
	}
	return users
}
