package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/MaheshIMDev/Flick/kafka"
	"github.com/MaheshIMDev/Flick/metrics"
	"github.com/MaheshIMDev/Flick/models"
)

// 消息发送限流：每用户每分钟 60 条
const (
	messageRateLimit  = 60
	messageRateWindow = 60 * time.Second
)

func (h *SocketHandler) handleSendMessage(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		ConversationID string `json:"conversationId"`
		Content        string `json:"content"`
		MessageType    string `json:"messageType"`
		TempID         string `json:"tempId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" || req.Content == "" {
		client.Emit("error", map[string]interface{}{
			"message": "conversationId and content are required",
			"tempId":  req.TempID,
		})
		return
	}
	if req.MessageType == "" {
		req.MessageType = "text"
	}

	if !h.limiter.Allow(ctx, client.UserID, "messages", messageRateLimit, messageRateWindow) {
		metrics.RateLimitedTotal.WithLabelValues("messages").Inc()
		client.Emit("error", map[string]interface{}{
			"message": "Too many messages. Please slow down.",
			"tempId":  req.TempID,
		})
		return
	}

	ok, err := h.convs.IsParticipant(req.ConversationID, client.UserID)
	if err != nil {
		log.Printf("send_message participant check error: %v", err)
		client.Emit("error", map[string]interface{}{"message": "Failed to send message", "tempId": req.TempID})
		return
	}
	if !ok {
		client.Emit("error", map[string]interface{}{"message": "Not a conversation member", "tempId": req.TempID})
		return
	}

	now := time.Now()
	message := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		SenderID:       client.UserID,
		Content:        req.Content, // 不透明内容，原样存原样转
		Type:           req.MessageType,
		SentAt:         now,
	}
	if err := h.convs.SaveMessage(message); err != nil {
		log.Printf("Failed to save message: %v", err)
		client.Emit("error", map[string]interface{}{"message": "Failed to send message", "tempId": req.TempID})
		return
	}
	if err := h.convs.TouchLastMessage(req.ConversationID, now); err != nil {
		log.Printf("Failed to touch conversation %s: %v", req.ConversationID, err)
	}

	// 回显带 tempId，发送方用它替换（而不是追加）本地乐观消息；
	// 广播给整个房间，发送方的其他设备也要收到
	message.TempID = req.TempID
	h.hub.Broadcast(ctx, "conversation:"+req.ConversationID, "receive_message", message, "")
	metrics.MessagesDeliveredTotal.Inc()

	// 其他成员的未读计数和离线推送
	participants, err := h.convs.Participants(req.ConversationID)
	if err != nil {
		log.Printf("Failed to load participants for %s: %v", req.ConversationID, err)
		participants = nil
	}
	for _, participantID := range participants {
		if participantID == client.UserID {
			continue
		}
		h.unread.Incr(ctx, participantID, req.ConversationID)

		online, err := h.presence.IsOnline(ctx, participantID)
		if err != nil {
			log.Printf("Presence check failed for %s: %v", participantID, err)
			continue
		}
		if online {
			h.hub.ToUser(ctx, participantID, "unread_update", map[string]interface{}{
				"conversationId": req.ConversationID,
				"unreadCount":    h.unread.Count(ctx, participantID, req.ConversationID),
			})
		} else {
			// 进离线队列，并投一条推送事件给下游
			if data, err := json.Marshal(message); err == nil {
				h.unread.QueueMessage(ctx, req.ConversationID, string(data))
			}
			h.notifier.NotifyOffline(kafka.NotifyEvent{
				UserID:         participantID,
				ConversationID: req.ConversationID,
				SenderID:       client.UserID,
				MessageID:      message.ID,
				MessageType:    message.Type,
				SentAt:         now.UnixMilli(),
			})
			log.Printf("Queued notification for offline user: %s", participantID)
		}
	}

	// 发消息隐含停止输入，客户端不会看到卡住的 typing 状态
	h.typing.Stop(ctx, req.ConversationID, client.UserID)
	h.hub.Broadcast(ctx, "conversation:"+req.ConversationID, "user_stopped_typing", map[string]interface{}{
		"userId":         client.UserID,
		"conversationId": req.ConversationID,
	}, client.ID)
}

func (h *SocketHandler) handleMarkRead(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		ConversationID string `json:"conversationId"`
		MessageID      string `json:"messageId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		return
	}

	h.unread.Clear(ctx, client.UserID, req.ConversationID)

	h.hub.Broadcast(ctx, "conversation:"+req.ConversationID, "message_read", map[string]interface{}{
		"userId":         client.UserID,
		"messageId":      req.MessageID,
		"conversationId": req.ConversationID,
		"readAt":         time.Now().UnixMilli(),
	}, client.ID)
}
