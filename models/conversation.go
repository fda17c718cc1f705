package models

import "time"

type Conversation struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid"`
	Type          string     `json:"type"` // direct, group
	Name          string     `json:"name"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ConversationParticipant struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"index;type:uuid"`
	UserID         string    `json:"user_id" gorm:"index;type:uuid"`
	IsActive       bool      `json:"is_active"`
	JoinedAt       time.Time `json:"joined_at"`
}
