package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MaheshIMDev/Flick/cache"
	"github.com/MaheshIMDev/Flick/kafka"
	"github.com/MaheshIMDev/Flick/limiter"
	"github.com/MaheshIMDev/Flick/models"
	"github.com/MaheshIMDev/Flick/services"
)

type testEnv struct {
	handler  *SocketHandler
	hub      *Hub
	store    cache.Store
	db       *gorm.DB
	presence *services.PresenceService
	unread   *services.UnreadService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrateAll(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	store := cache.NewMemory()
	hub := NewHub(store)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	registry := services.NewRegistryService(store)
	presence := services.NewPresenceService(store, db)
	typing := services.NewTypingService(store)
	unread := services.NewUnreadService(store)
	convs := services.NewConversationService(db)
	calls := services.NewCallService(db, store, registry)
	rateLimiter := limiter.NewManager(store, &limiter.FixedWindowStrategy{})

	handler := NewSocketHandler(hub, registry, presence, typing, unread, convs, calls, rateLimiter, kafka.NopNotifier{})
	return &testEnv{handler: handler, hub: hub, store: store, db: db, presence: presence, unread: unread}
}

func (env *testEnv) seedConversation(t *testing.T, convID string, userIDs ...string) {
	t.Helper()
	if err := env.db.Create(&models.Conversation{ID: convID, Type: "direct"}).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	for _, userID := range userIDs {
		p := models.ConversationParticipant{
			ConversationID: convID,
			UserID:         userID,
			IsActive:       true,
			JoinedAt:       time.Now(),
		}
		if err := env.db.Create(&p).Error; err != nil {
			t.Fatalf("seed participant %s: %v", userID, err)
		}
	}
}

// joinConv 把连接放进会话房间和自己的用户房间
func (env *testEnv) joinConv(convID string, c *Client) {
	env.hub.Add(c)
	env.hub.Join("user:"+c.UserID, c)
	env.hub.Join("conversation:"+convID, c)
}

func rawPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestSendMessageEchoesTempID(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.seedConversation(t, "conv-1", "alice", "bob")

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	env.joinConv("conv-1", alice)
	env.joinConv("conv-1", bob)
	env.presence.SetOnline(ctx, "bob", services.PresenceTTL)

	env.handler.handleSendMessage(ctx, alice, rawPayload(t, map[string]string{
		"conversationId": "conv-1",
		"content":        "ciphertext-blob",
		"tempId":         "tmp-123",
	}))

	// 发送方和接收方都收到同一条广播，tempId 原样回显
	for _, c := range []*Client{alice, bob} {
		ev := recvEvent(t, c)
		if ev.Type != "receive_message" {
			t.Fatalf("event type = %q", ev.Type)
		}
		// 广播经过 pub/sub 的 JSON 往返，载荷是泛型 map
		msg, ok := ev.Payload.(map[string]interface{})
		if !ok {
			t.Fatalf("payload type %T", ev.Payload)
		}
		if msg["temp_id"] != "tmp-123" {
			t.Fatalf("temp_id = %v, want tmp-123", msg["temp_id"])
		}
		if msg["content"] != "ciphertext-blob" {
			t.Fatalf("content = %v, content must pass through untouched", msg["content"])
		}
	}

	// bob 在线：收到未读数推送
	ev := recvEvent(t, bob)
	if ev.Type != "unread_update" {
		t.Fatalf("event type = %q, want unread_update", ev.Type)
	}

	// 消息落库，tempId 不落库
	var saved models.Message
	if err := env.db.First(&saved, "conversation_id = ?", "conv-1").Error; err != nil {
		t.Fatalf("load message: %v", err)
	}
	if saved.TempID != "" {
		t.Fatalf("tempId leaked into storage: %q", saved.TempID)
	}
}

func TestSendMessageQueuesForOfflineParticipant(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.seedConversation(t, "conv-1", "alice", "bob")

	alice := newTestClient("alice")
	env.joinConv("conv-1", alice)
	// bob 离线

	env.handler.handleSendMessage(ctx, alice, rawPayload(t, map[string]string{
		"conversationId": "conv-1",
		"content":        "hello",
		"tempId":         "tmp-1",
	}))

	if n := env.unread.Count(ctx, "bob", "conv-1"); n != 1 {
		t.Fatalf("bob unread = %d, want 1", n)
	}
	queued := env.unread.QueuedMessages(ctx, "conv-1")
	if len(queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(queued))
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.seedConversation(t, "conv-1", "alice", "bob")

	mallory := newTestClient("mallory")
	env.joinConv("conv-1", mallory)

	env.handler.handleSendMessage(ctx, mallory, rawPayload(t, map[string]string{
		"conversationId": "conv-1",
		"content":        "hi",
		"tempId":         "tmp-9",
	}))

	ev := recvEvent(t, mallory)
	if ev.Type != "error" {
		t.Fatalf("event type = %q, want error", ev.Type)
	}
	payload := ev.Payload.(map[string]interface{})
	if payload["tempId"] != "tmp-9" {
		t.Fatalf("error should carry tempId, got %v", payload["tempId"])
	}

	var count int64
	env.db.Model(&models.Message{}).Count(&count)
	if count != 0 {
		t.Fatalf("message persisted for non-participant, count = %d", count)
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.seedConversation(t, "conv-1", "alice", "bob")

	alice := newTestClient("alice")
	env.joinConv("conv-1", alice)

	payload := rawPayload(t, map[string]string{
		"conversationId": "conv-1",
		"content":        "spam",
	})
	for i := 0; i < messageRateLimit; i++ {
		env.handler.handleSendMessage(ctx, alice, payload)
		recvEvent(t, alice) // receive_message 回显
	}

	env.handler.handleSendMessage(ctx, alice, payload)
	ev := recvEvent(t, alice)
	if ev.Type != "error" {
		t.Fatalf("event type = %q, want rate limit error", ev.Type)
	}
}

func TestMarkReadClearsUnreadAndNotifiesOthers(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.seedConversation(t, "conv-1", "alice", "bob")

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	env.joinConv("conv-1", alice)
	env.joinConv("conv-1", bob)

	env.unread.Incr(ctx, "bob", "conv-1")
	env.handler.handleMarkRead(ctx, bob, rawPayload(t, map[string]string{
		"conversationId": "conv-1",
		"messageId":      "m1",
	}))

	if n := env.unread.Count(ctx, "bob", "conv-1"); n != 0 {
		t.Fatalf("unread after mark_read = %d, want 0", n)
	}

	// 已读回执广播给房间里其他人，不回给自己
	ev := recvEvent(t, alice)
	if ev.Type != "message_read" {
		t.Fatalf("event type = %q, want message_read", ev.Type)
	}
	assertNoEvent(t, bob)
}
