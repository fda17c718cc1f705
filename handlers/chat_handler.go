package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MaheshIMDev/Flick/models"
	"github.com/MaheshIMDev/Flick/services"
)

// ChatHandler 历史消息等只读 REST 接口，实时流量全部走 websocket
type ChatHandler struct {
	convs    *services.ConversationService
	presence *services.PresenceService
}

func NewChatHandler(convs *services.ConversationService, presence *services.PresenceService) *ChatHandler {
	return &ChatHandler{convs: convs, presence: presence}
}

// GetMessages 分页拉取会话历史消息
func (h *ChatHandler) GetMessages(c echo.Context) error {
	user := c.Get("user").(*models.User)
	conversationID := c.Param("conversationId")

	ok, err := h.convs.IsParticipant(conversationID, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch messages",
		})
	}
	if !ok {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "not a conversation participant",
		})
	}

	// 分页参数
	limit := 50
	offset := 0
	if c.QueryParam("limit") != "" {
		fmt.Sscanf(c.QueryParam("limit"), "%d", &limit)
	}
	if c.QueryParam("offset") != "" {
		fmt.Sscanf(c.QueryParam("offset"), "%d", &offset)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	messages, err := h.convs.Messages(conversationID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch messages",
		})
	}
	return c.JSON(http.StatusOK, messages)
}

// GetOnlineFriends 返回当前在线的好友 ID 列表
func (h *ChatHandler) GetOnlineFriends(c echo.Context) error {
	user := c.Get("user").(*models.User)

	friends, err := h.convs.Friends(user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch friends",
		})
	}

	online := make([]string, 0, len(friends))
	for _, friendID := range friends {
		ok, err := h.presence.IsOnline(c.Request().Context(), friendID)
		if err != nil {
			log.Printf("Presence check failed for %s: %v", friendID, err)
			continue
		}
		if ok {
			online = append(online, friendID)
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"online_friends": online,
	})
}
