package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/MaheshIMDev/Flick/kafka"
	"github.com/MaheshIMDev/Flick/limiter"
	"github.com/MaheshIMDev/Flick/metrics"
	"github.com/MaheshIMDev/Flick/models"
	"github.com/MaheshIMDev/Flick/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 心跳续期间隔，比在线标记 TTL 短，避免活跃连接被误判下线
const heartbeatInterval = 20 * time.Second

// SocketHandler 实时链路的入口：连接生命周期、事件分发，
// 以及消息/在线状态/通话各处理器共享的依赖。
type SocketHandler struct {
	hub      *Hub
	registry *services.RegistryService
	presence *services.PresenceService
	typing   *services.TypingService
	unread   *services.UnreadService
	convs    *services.ConversationService
	calls    *services.CallService
	limiter  *limiter.Manager
	notifier kafka.Notifier
}

func NewSocketHandler(
	hub *Hub,
	registry *services.RegistryService,
	presence *services.PresenceService,
	typing *services.TypingService,
	unread *services.UnreadService,
	convs *services.ConversationService,
	calls *services.CallService,
	rateLimiter *limiter.Manager,
	notifier kafka.Notifier,
) *SocketHandler {
	return &SocketHandler{
		hub:      hub,
		registry: registry,
		presence: presence,
		typing:   typing,
		unread:   unread,
		convs:    convs,
		calls:    calls,
		limiter:  rateLimiter,
		notifier: notifier,
	}
}

func (h *SocketHandler) HandleWebSocket(c echo.Context) error {
	user := c.Get("user").(*models.User)

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:     uuid.New().String(),
		UserID: user.ID,
		Conn:   ws,
		Send:   make(chan Event, 256),
		ctx:    ctx,
		cancel: cancel,
	}

	h.hub.Add(client)
	metrics.WSConnections.Inc()

	h.setupConnection(ctx, client)

	// 启动写入goroutine
	go h.writePump(client)

	// 心跳定时器，连接级的进程本地状态，断开时随 ctx 一起取消
	go h.heartbeatLoop(client)

	// 当前goroutine处理读取
	h.readPump(client)

	return nil
}

// setupConnection 连接建立后的登记：连接注册表、在线状态、房间、未读推送
func (h *SocketHandler) setupConnection(ctx context.Context, client *Client) {
	userID := client.UserID

	first, err := h.registry.Register(ctx, userID, client.ID)
	if err != nil {
		// 注册表不可用只影响可达性查询，连接照常服务
		log.Printf("Connection registry register failed for user %s: %v", userID, err)
	}

	if err := h.presence.SetOnline(ctx, userID, services.PresenceTTL); err != nil {
		log.Printf("Failed to mark user %s online: %v", userID, err)
	}

	// 个人房间 + 所有会话房间
	h.hub.Join("user:"+userID, client)
	convIDs, err := h.convs.UserConversations(userID)
	if err != nil {
		log.Printf("Failed to load conversations for user %s: %v", userID, err)
	}
	for _, convID := range convIDs {
		h.hub.Join("conversation:"+convID, client)
	}

	// 第一个连接才算真正上线，广播一次
	if first {
		h.broadcastToFriends(ctx, userID, "friend_online", map[string]interface{}{
			"userId":    userID,
			"timestamp": time.Now().UnixMilli(),
		})
	}

	// 把积压的未读计数推给刚连上的客户端
	for _, convID := range convIDs {
		if count := h.unread.Count(ctx, userID, convID); count > 0 {
			client.Emit("unread_update", map[string]interface{}{
				"conversationId": convID,
				"unreadCount":    count,
			})
		}
	}
}

// teardownConnection 断开后的清理，readPump 退出时调用
func (h *SocketHandler) teardownConnection(client *Client) {
	ctx := context.Background()
	userID := client.UserID

	last, err := h.registry.Remove(ctx, userID, client.ID)
	if err != nil {
		log.Printf("Disconnect cleanup error for user %s: %v", userID, err)
		// 注册表读不到就保守地按下线处理，宁可闪一下也不挂死在线状态
		last = true
	}
	if !last {
		return
	}

	if err := h.presence.SetOffline(ctx, userID); err != nil {
		log.Printf("Failed to mark user %s offline: %v", userID, err)
	}
	h.broadcastToFriends(ctx, userID, "friend_offline", map[string]interface{}{
		"userId":   userID,
		"lastSeen": time.Now().UnixMilli(),
	})

	// 清掉残留的输入中标记
	convIDs, err := h.convs.UserConversations(userID)
	if err != nil {
		return
	}
	for _, convID := range convIDs {
		h.typing.Stop(ctx, convID, userID)
		h.hub.Broadcast(ctx, "conversation:"+convID, "user_stopped_typing", map[string]interface{}{
			"userId":         userID,
			"conversationId": convID,
		}, client.ID)
	}
}

// 读取客户端消息
func (h *SocketHandler) readPump(client *Client) {
	defer func() {
		client.cancel()
		h.hub.Remove(client)
		client.Conn.Close()
		metrics.WSConnections.Dec()
		h.teardownConnection(client)
	}()

	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg wireMessage
		err := client.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		h.handleMessage(client, msg)
	}
}

// 向客户端写入消息
func (h *SocketHandler) writePump(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case <-client.ctx.Done():
			return

		case event := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteJSON(event); err != nil {
				log.Printf("WriteJSON error: %v", err)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *SocketHandler) heartbeatLoop(client *Client) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-client.ctx.Done():
			return
		case <-ticker.C:
			if err := h.presence.SetOnline(client.ctx, client.UserID, services.PresenceTTL); err != nil {
				log.Printf("Heartbeat refresh failed for user %s: %v", client.UserID, err)
			}
		}
	}
}

// 事件分发。未知类型直接忽略；基础设施错误只中断当前操作，不断连接。
func (h *SocketHandler) handleMessage(client *Client, msg wireMessage) {
	ctx := client.ctx

	switch msg.Type {
	case "join_conversation":
		h.handleJoinConversation(ctx, client, msg.Payload)
	case "leave_conversation":
		h.handleLeaveConversation(ctx, client, msg.Payload)
	case "get_online_friends":
		h.handleGetOnlineFriends(ctx, client)
	case "heartbeat":
		if err := h.presence.SetOnline(ctx, client.UserID, services.PresenceTTL); err != nil {
			log.Printf("Heartbeat failed for user %s: %v", client.UserID, err)
		}
	case "send_message":
		h.handleSendMessage(ctx, client, msg.Payload)
	case "mark_read":
		h.handleMarkRead(ctx, client, msg.Payload)
	case "typing_start":
		h.handleTypingStart(ctx, client, msg.Payload)
	case "typing_stop":
		h.handleTypingStop(ctx, client, msg.Payload)
	case "update_presence":
		h.handleUpdatePresence(ctx, client, msg.Payload)
	case "webrtc_offer":
		h.handleCallOffer(ctx, client, msg.Payload)
	case "webrtc_answer_call":
		h.handleAnswerCall(ctx, client, msg.Payload)
	case "webrtc_answer":
		h.handleCallAnswerRelay(ctx, client, msg.Payload)
	case "webrtc_ice_candidate":
		h.handleICECandidate(ctx, client, msg.Payload)
	case "webrtc_reject_call":
		h.handleRejectCall(ctx, client, msg.Payload)
	case "webrtc_end_call":
		h.handleEndCall(ctx, client, msg.Payload)
	}
}

func (h *SocketHandler) handleJoinConversation(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		client.Emit("error", map[string]interface{}{"message": "conversationId is required"})
		return
	}

	ok, err := h.convs.IsParticipant(req.ConversationID, client.UserID)
	if err != nil {
		log.Printf("join_conversation error: %v", err)
		client.Emit("error", map[string]interface{}{"message": "Failed to join conversation"})
		return
	}
	if !ok {
		client.Emit("error", map[string]interface{}{"message": "Not a conversation participant"})
		return
	}

	h.hub.Join("conversation:"+req.ConversationID, client)
	client.Emit("joined_conversation", map[string]interface{}{"conversationId": req.ConversationID})

	// 进入会话视为已读
	h.unread.Clear(ctx, client.UserID, req.ConversationID)

	typingUsers := make([]string, 0)
	for _, id := range h.typing.Typing(ctx, req.ConversationID) {
		if id != client.UserID {
			typingUsers = append(typingUsers, id)
		}
	}
	if len(typingUsers) > 0 {
		client.Emit("typing_users", map[string]interface{}{
			"conversationId": req.ConversationID,
			"userIds":        typingUsers,
		})
	}
}

func (h *SocketHandler) handleLeaveConversation(_ context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		return
	}
	h.hub.Leave("conversation:"+req.ConversationID, client)
	client.Emit("left_conversation", map[string]interface{}{"conversationId": req.ConversationID})
}

func (h *SocketHandler) handleGetOnlineFriends(ctx context.Context, client *Client) {
	friends, err := h.convs.Friends(client.UserID)
	if err != nil {
		log.Printf("get_online_friends error: %v", err)
		client.Emit("online_friends", []interface{}{})
		return
	}

	status := make([]map[string]interface{}, 0, len(friends))
	for _, friendID := range friends {
		online, err := h.presence.IsOnline(ctx, friendID)
		if err != nil {
			online = false
		}
		lastSeen, _ := h.presence.LastSeen(ctx, friendID)
		status = append(status, map[string]interface{}{
			"userId":   friendID,
			"isOnline": online,
			"lastSeen": lastSeen,
		})
	}
	client.Emit("online_friends", status)
}

// broadcastToFriends 把事件投给用户的全部好友
func (h *SocketHandler) broadcastToFriends(ctx context.Context, userID, eventType string, payload interface{}) {
	friends, err := h.convs.Friends(userID)
	if err != nil {
		log.Printf("broadcastToFriends error: %v", err)
		return
	}
	for _, friendID := range friends {
		h.hub.ToUser(ctx, friendID, eventType, payload)
	}
}
