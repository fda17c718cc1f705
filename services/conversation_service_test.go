package services_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MaheshIMDev/Flick/models"
	"github.com/MaheshIMDev/Flick/services"
)

func TestParticipantQueries(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewConversationService(db)

	db.Create(&models.Conversation{ID: "conv-1", Type: "group"})
	for _, p := range []models.ConversationParticipant{
		{ConversationID: "conv-1", UserID: "alice", IsActive: true, JoinedAt: time.Now()},
		{ConversationID: "conv-1", UserID: "bob", IsActive: true, JoinedAt: time.Now()},
		{ConversationID: "conv-1", UserID: "carol", IsActive: false, JoinedAt: time.Now()},
	} {
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	ok, err := svc.IsParticipant("conv-1", "alice")
	if err != nil || !ok {
		t.Fatalf("IsParticipant(alice) = %v, %v", ok, err)
	}
	// 已退出的成员不算
	ok, err = svc.IsParticipant("conv-1", "carol")
	if err != nil || ok {
		t.Fatalf("IsParticipant(carol) = %v, %v, inactive member should not count", ok, err)
	}

	participants, err := svc.Participants("conv-1")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("participants = %v, want alice and bob", participants)
	}

	convs, err := svc.UserConversations("alice")
	if err != nil || len(convs) != 1 || convs[0] != "conv-1" {
		t.Fatalf("UserConversations = %v, %v", convs, err)
	}
}

func TestFriendsExcludesBlocked(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewConversationService(db)

	db.Create(&models.UserConnection{UserID: "alice", ConnectedUserID: "bob", Status: "active"})
	db.Create(&models.UserConnection{UserID: "alice", ConnectedUserID: "mallory", Status: "blocked"})

	friends, err := svc.Friends("alice")
	if err != nil {
		t.Fatalf("friends: %v", err)
	}
	if len(friends) != 1 || friends[0] != "bob" {
		t.Fatalf("friends = %v, want [bob]", friends)
	}
}

func TestMessagePagingKeepsOrder(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewConversationService(db)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := models.Message{
			ID:             uuid.New().String(),
			ConversationID: "conv-1",
			SenderID:       "alice",
			Content:        "blob",
			Type:           "text",
			SentAt:         base.Add(time.Duration(i) * time.Minute),
		}
		if err := svc.SaveMessage(&msg); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	page, err := svc.Messages("conv-1", 3, 0)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("page size = %d, want 3", len(page))
	}
	if !page[0].SentAt.Before(page[1].SentAt) {
		t.Fatal("messages must come back in ascending sent_at order")
	}

	rest, err := svc.Messages("conv-1", 3, 3)
	if err != nil || len(rest) != 2 {
		t.Fatalf("second page = %d, %v, want 2", len(rest), err)
	}
}

func TestTouchLastMessage(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewConversationService(db)

	db.Create(&models.Conversation{ID: "conv-1", Type: "direct"})

	at := time.Now()
	if err := svc.TouchLastMessage("conv-1", at); err != nil {
		t.Fatalf("touch: %v", err)
	}

	var conv models.Conversation
	if err := db.First(&conv, "id = ?", "conv-1").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if conv.LastMessageAt == nil {
		t.Fatal("last_message_at should be set")
	}
}
