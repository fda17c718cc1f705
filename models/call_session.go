package models

import "time"

// 通话会话状态
const (
	CallRinging   = "ringing"
	CallActive    = "active"
	CallDeclined  = "declined"
	CallMissed    = "missed"
	CallEnded     = "ended"
	CallCancelled = "cancelled"
)

// 结束原因
const (
	EndReasonDeclined  = "declined"
	EndReasonNoAnswer  = "no_answer"
	EndReasonCompleted = "completed"
	EndReasonCancelled = "cancelled"
)

// CallSession 通话会话，状态只能单向推进，进入终态后不再变更。
// 任何状态写入都必须带上当前状态条件（compare-and-set），不能盲写。
type CallSession struct {
	ID              string     `json:"id" gorm:"primaryKey;type:uuid"`
	CallerID        string     `json:"caller_id" gorm:"index;type:uuid"`
	CalleeID        string     `json:"callee_id" gorm:"index;type:uuid"`
	Type            string     `json:"type"`   // audio, video
	Status          string     `json:"status"` // ringing, active, declined, missed, ended, cancelled
	InitiatedAt     time.Time  `json:"initiated_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	EndReason       *string    `json:"end_reason,omitempty"` // declined, no_answer, completed, cancelled
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	EndedByUserID   *string    `json:"ended_by_user_id,omitempty" gorm:"type:uuid"`
}

// IsTerminal 是否已进入终态
func (s *CallSession) IsTerminal() bool {
	switch s.Status {
	case CallDeclined, CallMissed, CallEnded, CallCancelled:
		return true
	}
	return false
}
