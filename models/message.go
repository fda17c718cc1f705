package models

import "time"

type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	ConversationID string    `json:"conversation_id" gorm:"index;type:uuid"`
	SenderID       string    `json:"sender_id" gorm:"type:uuid"`
	Content        string    `json:"content" gorm:"type:text"` // 内容按不透明数据处理，加解密在客户端
	Type           string    `json:"type"`                     // text, image, file
	SentAt         time.Time `json:"sent_at"`
	TempID         string    `json:"temp_id,omitempty" gorm:"-"` // 客户端乐观消息的对账 ID，不落库
	SenderName     string    `json:"sender_name,omitempty" gorm:"-"`
	SenderAvatar   string    `json:"sender_avatar,omitempty" gorm:"-"`
}
