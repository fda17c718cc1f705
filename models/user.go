package models

import "time"

type User struct {
	ID          string     `json:"id" gorm:"primaryKey;type:uuid"`
	Email       string     `json:"email" gorm:"uniqueIndex"`
	Username    string     `json:"username" gorm:"uniqueIndex"`
	Password    string     `json:"-"` // bcrypt hash
	DisplayName string     `json:"display_name"`
	Avatar      string     `json:"avatar"`
	IsOnline    bool       `json:"is_online"`              // 降级模式下的在线状态（Redis 不可用时读写这里）
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"` // 降级模式下的最后在线时间
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// 好友关系，状态管理由外部服务负责，这里只读
type UserConnection struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	UserID          string    `json:"user_id" gorm:"index;type:uuid"`
	ConnectedUserID string    `json:"connected_user_id" gorm:"type:uuid"`
	Status          string    `json:"status"` // active, blocked
	CreatedAt       time.Time `json:"created_at"`
}

type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}
