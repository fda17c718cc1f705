package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MaheshIMDev/Flick/cache"
)

func newTestClient(userID string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Send:   make(chan Event, 8),
	}
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.Send:
		t.Fatalf("unexpected event %q for client %s", ev.Type, c.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(cache.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	// 等订阅建立
	time.Sleep(10 * time.Millisecond)
	return hub
}

func TestBroadcastReachesRoomMembers(t *testing.T) {
	hub := startHub(t)

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	carol := newTestClient("carol")
	for _, c := range []*Client{alice, bob, carol} {
		hub.Add(c)
	}
	hub.Join("conversation:conv-1", alice)
	hub.Join("conversation:conv-1", bob)
	// carol 不在房间里

	hub.Broadcast(context.Background(), "conversation:conv-1", "receive_message",
		map[string]string{"id": "m1"}, "")

	for _, c := range []*Client{alice, bob} {
		ev := recvEvent(t, c)
		if ev.Type != "receive_message" {
			t.Fatalf("event type = %q", ev.Type)
		}
	}
	assertNoEvent(t, carol)
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	hub := startHub(t)

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	hub.Add(alice)
	hub.Add(bob)
	hub.Join("conversation:conv-1", alice)
	hub.Join("conversation:conv-1", bob)

	hub.Broadcast(context.Background(), "conversation:conv-1", "user_typing",
		map[string]string{"userId": "alice"}, alice.ID)

	if ev := recvEvent(t, bob); ev.Type != "user_typing" {
		t.Fatalf("event type = %q", ev.Type)
	}
	assertNoEvent(t, alice)
}

func TestToUserTargetsAllUserConnections(t *testing.T) {
	hub := startHub(t)

	// 同一用户的两个设备
	conn1 := newTestClient("alice")
	conn2 := newTestClient("alice")
	hub.Add(conn1)
	hub.Add(conn2)
	hub.Join("user:alice", conn1)
	hub.Join("user:alice", conn2)

	hub.ToUser(context.Background(), "alice", "unread_update",
		map[string]interface{}{"count": 3})

	for _, c := range []*Client{conn1, conn2} {
		if ev := recvEvent(t, c); ev.Type != "unread_update" {
			t.Fatalf("event type = %q", ev.Type)
		}
	}
}

func TestLeaveAndRemoveStopDelivery(t *testing.T) {
	hub := startHub(t)

	alice := newTestClient("alice")
	hub.Add(alice)
	hub.Join("conversation:conv-1", alice)
	hub.Join("conversation:conv-2", alice)

	hub.Leave("conversation:conv-1", alice)
	hub.Broadcast(context.Background(), "conversation:conv-1", "receive_message", nil, "")
	assertNoEvent(t, alice)

	// Remove 清掉所有房间
	hub.Remove(alice)
	hub.Broadcast(context.Background(), "conversation:conv-2", "receive_message", nil, "")
	assertNoEvent(t, alice)
	if n := hub.RoomSize("conversation:conv-2"); n != 0 {
		t.Fatalf("room size = %d, want 0", n)
	}
}

// publishFailStore 让 pub/sub 发布失败，验证本地投递退路
type publishFailStore struct {
	*cache.Memory
}

func (publishFailStore) Publish(context.Context, string, string) error {
	return errors.New("pubsub down")
}

func TestBroadcastFallsBackToLocalDelivery(t *testing.T) {
	hub := NewHub(publishFailStore{cache.NewMemory()})

	alice := newTestClient("alice")
	hub.Add(alice)
	hub.Join("conversation:conv-1", alice)

	hub.Broadcast(context.Background(), "conversation:conv-1", "receive_message",
		map[string]string{"id": "m1"}, "")

	if ev := recvEvent(t, alice); ev.Type != "receive_message" {
		t.Fatalf("event type = %q", ev.Type)
	}
}
