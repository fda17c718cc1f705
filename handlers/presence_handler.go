package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/MaheshIMDev/Flick/services"
)

func (h *SocketHandler) handleTypingStart(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		return
	}

	h.typing.Start(ctx, req.ConversationID, client.UserID)
	h.hub.Broadcast(ctx, "conversation:"+req.ConversationID, "user_typing", map[string]interface{}{
		"userId":         client.UserID,
		"conversationId": req.ConversationID,
		"timestamp":      time.Now().UnixMilli(),
	}, client.ID)
}

func (h *SocketHandler) handleTypingStop(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		return
	}

	h.typing.Stop(ctx, req.ConversationID, client.UserID)
	h.hub.Broadcast(ctx, "conversation:"+req.ConversationID, "user_stopped_typing", map[string]interface{}{
		"userId":         client.UserID,
		"conversationId": req.ConversationID,
		"timestamp":      time.Now().UnixMilli(),
	}, client.ID)
}

func (h *SocketHandler) handleUpdatePresence(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		Status string `json:"status"` // online, away, busy
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Status == "" {
		return
	}

	if req.Status == "online" {
		if err := h.presence.SetOnline(ctx, client.UserID, services.PresenceTTL); err != nil {
			log.Printf("update_presence error: %v", err)
		}
	}

	h.broadcastToFriends(ctx, client.UserID, "friend_presence_update", map[string]interface{}{
		"userId":    client.UserID,
		"status":    req.Status,
		"timestamp": time.Now().UnixMilli(),
	})
}
