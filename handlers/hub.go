package handlers

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/MaheshIMDev/Flick/cache"
)

// 跨进程事件广播用的 pub/sub 频道
const fanoutChannel = "ws:events"

// Event 下发给客户端的消息信封
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// 客户端发来的消息信封
type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// 跨进程广播帧
type fanoutFrame struct {
	Room   string `json:"room"`
	Except string `json:"except,omitempty"` // 排除的连接 ID
	Event  Event  `json:"event"`
}

// Client 代表一个 WebSocket 连接的客户端
type Client struct {
	ID     string             // 连接唯一标识（UUID）
	UserID string             // 用户 ID
	Conn   *websocket.Conn    // WebSocket连接
	Send   chan Event         // 发送消息队列（缓冲256条）
	ctx    context.Context    // 上下文管理
	cancel context.CancelFunc // 取消函数
}

// Emit 投递一条事件到该连接，发送缓冲满时丢弃（慢客户端由 writePump 淘汰）
func (c *Client) Emit(eventType string, payload interface{}) {
	select {
	case c.Send <- Event{Type: eventType, Payload: payload}:
	default:
		log.Printf("Client %s send buffer full, dropping event %s", c.ID, eventType)
	}
}

// Hub 管理本进程的连接和房间成员关系。广播先走共享缓存的 pub/sub，
// 每个实例订阅同一频道再投给本地成员，水平扩展时各实例都能收到；
// 发布失败退回仅本地投递（单机降级，等价于原来的内存广播）。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // connID -> client
	rooms   map[string]map[string]*Client // room -> connID -> client
	store   cache.Store
}

func NewHub(store cache.Store) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		store:   store,
	}
}

// Run 订阅跨进程广播频道并投递给本地成员，阻塞到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	msgs, err := h.store.Subscribe(ctx, fanoutChannel)
	if err != nil {
		log.Printf("Fanout subscribe failed, running in local-only mode: %v", err)
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			var frame fanoutFrame
			if err := json.Unmarshal([]byte(raw), &frame); err != nil {
				log.Printf("Bad fanout frame: %v", err)
				continue
			}
			h.deliverLocal(frame.Room, frame.Except, frame.Event)
		}
	}
}

func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
}

// Remove 摘掉连接并退出它所在的全部房间
func (h *Hub) Remove(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	for room, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Join(room string, client *Client) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
	h.mu.Unlock()
}

func (h *Hub) Leave(room string, client *Client) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

// Broadcast 向房间内所有连接（跨实例）投递事件，except 指定要跳过的连接
func (h *Hub) Broadcast(ctx context.Context, room, eventType string, payload interface{}, except string) {
	frame := fanoutFrame{
		Room:   room,
		Except: except,
		Event:  Event{Type: eventType, Payload: payload},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Failed to marshal fanout frame: %v", err)
		return
	}
	if err := h.store.Publish(ctx, fanoutChannel, string(data)); err != nil {
		// 缓存不可用，退回本地投递
		log.Printf("Fanout publish failed, delivering locally: %v", err)
		h.deliverLocal(room, except, frame.Event)
	}
}

// ToUser 向某个用户的所有连接投递事件
func (h *Hub) ToUser(ctx context.Context, userID, eventType string, payload interface{}) {
	h.Broadcast(ctx, "user:"+userID, eventType, payload, "")
}

func (h *Hub) deliverLocal(room, except string, event Event) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for _, client := range h.rooms[room] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if except != "" && client.ID == except {
			continue
		}
		client.Emit(event.Type, event.Payload)
	}
}

// RoomSize 房间的本地成员数，测试用
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
