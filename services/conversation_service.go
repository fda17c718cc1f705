package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/MaheshIMDev/Flick/models"
)

var ErrNotParticipant = errors.New("not a conversation participant")

// ConversationService 只做实时链路需要的读查询和时间戳更新，
// 会话/好友的增删改由外部的 CRUD 服务负责。
type ConversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

// IsParticipant 校验用户是否为会话成员
func (s *ConversationService) IsParticipant(conversationID, userID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ? AND is_active = ?", conversationID, userID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Participants 返回会话的活跃成员 ID
func (s *ConversationService) Participants(conversationID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND is_active = ?", conversationID, true).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UserConversations 返回用户参与的全部会话 ID，连接建立时用来进房间
func (s *ConversationService) UserConversations(userID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.ConversationParticipant{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Friends 返回用户的活跃好友 ID，在线状态广播的目标集合
func (s *ConversationService) Friends(userID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.UserConnection{}).
		Where("user_id = ? AND status = ?", userID, "active").
		Pluck("connected_user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TouchLastMessage 更新会话的最后消息时间
func (s *ConversationService) TouchLastMessage(conversationID string, at time.Time) error {
	return s.db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_at", at).Error
}

// SaveMessage 持久化一条消息
func (s *ConversationService) SaveMessage(msg *models.Message) error {
	return s.db.Create(msg).Error
}

// Messages 按时间正序分页拉取历史消息
func (s *ConversationService) Messages(conversationID string, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("sent_at ASC").
		Limit(limit).Offset(offset).
		Find(&messages).Error
	return messages, err
}
