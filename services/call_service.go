package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MaheshIMDev/Flick/cache"
	"github.com/MaheshIMDev/Flick/metrics"
	"github.com/MaheshIMDev/Flick/models"
)

const (
	// 振铃阶段竞争锁的有效期，也是未接听判定的阈值
	ringingLockTTL = 60 * time.Second
	// 接通后锁延长到通话时长上限
	activeLockTTL = 2 * time.Hour
	// 超过这个时间还在 ringing 的会话由清扫任务转成 missed
	noAnswerTimeout = 60 * time.Second
)

var (
	// 双方同时拨号，本方在字典序裁决中落败
	ErrRaceLost = errors.New("call race lost")
	// 这对用户之间已有 ringing/active 的会话
	ErrCallInProgress = errors.New("call already in progress")
	// 被叫没有任何活跃连接
	ErrCalleeOffline = errors.New("callee unreachable")
	// 锁已过期或会话已被并发操作收尾，当作过期呼叫静默处理
	ErrNoActiveCall = errors.New("no active call")
)

// CallLock 振铃/通话期间放在缓存里的竞争锁，按有序对 (from, to) 建 key。
// 作用只有两个：让对端和清扫任务快速找到在途会话、探测双向同时拨号。
type CallLock struct {
	SessionID   string `json:"session_id"`
	CallerID    string `json:"caller_id"`
	CalleeID    string `json:"callee_id"`
	Type        string `json:"type"`
	InitiatedAt int64  `json:"initiated_at"` // unix 毫秒
	AnsweredAt  int64  `json:"answered_at,omitempty"`
}

// CallService 通话信令状态机。会话行在库里，竞争锁在缓存里；
// 库写失败整个操作回退（不会留下半截状态），缓存失败只降级竞争检测，
// 不阻塞信令本身。
type CallService struct {
	db       *gorm.DB
	store    cache.Store
	registry *RegistryService
}

func NewCallService(db *gorm.DB, store cache.Store, registry *RegistryService) *CallService {
	return &CallService{db: db, store: store, registry: registry}
}

func lockKey(fromID, toID string) string { return fmt.Sprintf("call:%s:%s", fromID, toID) }

func (s *CallService) readLock(ctx context.Context, fromID, toID string) (*CallLock, error) {
	raw, err := s.store.Get(ctx, lockKey(fromID, toID))
	if err != nil {
		return nil, err
	}
	var lock CallLock
	if err := json.Unmarshal([]byte(raw), &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

func (s *CallService) writeLock(ctx context.Context, lock *CallLock, ttl time.Duration) error {
	data, err := json.Marshal(lock)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, lockKey(lock.CallerID, lock.CalleeID), string(data), ttl)
}

// Offer 发起呼叫。返回的 raceWon 为 true 时表示对方同时在拨号且本方胜出，
// 调用方要给对方补一条 race_lost 通知。
//
// 竞争裁决规则：ID 字典序小者胜。简单、确定、无锁，两边独立算出同一结果。
// 这是既定策略，不保证公平。
func (s *CallService) Offer(ctx context.Context, callerID, calleeID, callType string) (session *models.CallSession, raceWon bool, err error) {
	initiatedAt := time.Now()

	// 反向锁存在说明对方也刚发起了呼叫
	reverse, lockErr := s.readLock(ctx, calleeID, callerID)
	if lockErr != nil && lockErr != cache.ErrNil {
		// 缓存不可用，竞争检测降级，呼叫继续
		log.Printf("Race lock check degraded: %v", lockErr)
	}
	if reverse != nil {
		if callerID < calleeID {
			log.Printf("Call race detected, %s wins over %s", callerID, calleeID)
			raceWon = true
			// 胜出方接管：对方刚建的会话按取消收尾，锁一并清掉
			res := s.db.WithContext(ctx).Model(&models.CallSession{}).
				Where("id = ? AND status = ?", reverse.SessionID, models.CallRinging).
				Updates(map[string]interface{}{
					"status":     models.CallCancelled,
					"end_reason": models.EndReasonCancelled,
					"ended_at":   time.Now(),
				})
			if res.Error != nil {
				return nil, false, res.Error
			}
			if err := s.store.Del(ctx, lockKey(calleeID, callerID)); err != nil {
				log.Printf("Failed to delete reverse call lock: %v", err)
			}
		} else {
			return nil, false, ErrRaceLost
		}
	}

	// 锁检查之外再查一次库，两步之间有窗口，见 DESIGN.md
	var count int64
	err = s.db.WithContext(ctx).Model(&models.CallSession{}).
		Where("((caller_id = ? AND callee_id = ?) OR (caller_id = ? AND callee_id = ?)) AND status IN ?",
			callerID, calleeID, calleeID, callerID,
			[]string{models.CallRinging, models.CallActive}).
		Count(&count).Error
	if err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, ErrCallInProgress
	}

	// 被叫不可达就直接告知主叫，不留下注定被清扫的会话
	reachable, reachErr := s.registry.IsReachable(ctx, calleeID)
	if reachErr == nil && !reachable {
		return nil, false, ErrCalleeOffline
	}

	session = &models.CallSession{
		ID:          uuid.New().String(),
		CallerID:    callerID,
		CalleeID:    calleeID,
		Type:        callType,
		Status:      models.CallRinging,
		InitiatedAt: initiatedAt,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		// 会话没建成就不写锁，保证无半截效果
		return nil, false, err
	}

	lock := &CallLock{
		SessionID:   session.ID,
		CallerID:    callerID,
		CalleeID:    calleeID,
		Type:        callType,
		InitiatedAt: initiatedAt.UnixMilli(),
	}
	if err := s.writeLock(ctx, lock, ringingLockTTL); err != nil {
		// 锁写失败只影响竞争检测和对端快速定位，信令继续
		log.Printf("Failed to write call lock for session %s: %v", session.ID, err)
	}
	return session, raceWon, nil
}

// Answer 被叫接听。返回双方共用的通话起点（unix 毫秒），两端显示的
// 通话时长从同一个时间起算，不受各自时钟偏差影响。
func (s *CallService) Answer(ctx context.Context, calleeID, callerID string) (int64, error) {
	lock, err := s.readLock(ctx, callerID, calleeID)
	if err != nil {
		if err == cache.ErrNil {
			return 0, ErrNoActiveCall
		}
		return 0, err
	}

	answeredAt := time.Now()
	res := s.db.WithContext(ctx).Model(&models.CallSession{}).
		Where("id = ? AND status = ?", lock.SessionID, models.CallRinging).
		Updates(map[string]interface{}{
			"status":      models.CallActive,
			"answered_at": answeredAt,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		// 并发的取消/清扫抢先落了终态
		return 0, ErrNoActiveCall
	}

	lock.AnsweredAt = answeredAt.UnixMilli()
	if err := s.writeLock(ctx, lock, activeLockTTL); err != nil {
		log.Printf("Failed to extend call lock for session %s: %v", lock.SessionID, err)
	}
	return answeredAt.UnixMilli(), nil
}

// Reject 被叫拒接。只在会话仍是 ringing 时生效（带状态条件的更新，
// 不盲写），输给并发的取消或清扫就静默放弃。
func (s *CallService) Reject(ctx context.Context, calleeID, callerID string) error {
	lock, err := s.readLock(ctx, callerID, calleeID)
	if err != nil {
		if err == cache.ErrNil {
			return ErrNoActiveCall
		}
		return err
	}

	now := time.Now()
	reason := models.EndReasonDeclined
	res := s.db.WithContext(ctx).Model(&models.CallSession{}).
		Where("id = ? AND status = ?", lock.SessionID, models.CallRinging).
		Updates(map[string]interface{}{
			"status":     models.CallDeclined,
			"end_reason": reason,
			"ended_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if err := s.store.Del(ctx, lockKey(callerID, calleeID)); err != nil {
		log.Printf("Failed to delete call lock: %v", err)
	}
	if res.RowsAffected == 0 {
		return ErrNoActiveCall
	}
	return nil
}

// End 任一方挂断。ended 为 false 表示会话早已收尾（重复挂断），幂等。
// clientDuration 是客户端上报的通话秒数，只在接通过的会话上采信。
func (s *CallService) End(ctx context.Context, userID, peerID string, clientDuration float64) (ended bool, err error) {
	var sessionID string
	lock, lockErr := s.readLock(ctx, userID, peerID)
	if lockErr == cache.ErrNil {
		lock, lockErr = s.readLock(ctx, peerID, userID)
	}
	switch {
	case lockErr == nil:
		sessionID = lock.SessionID
	case lockErr == cache.ErrNil:
		return false, ErrNoActiveCall
	default:
		// 缓存不可用时退回库查询，挂断不能被缓存故障挡住
		log.Printf("Call lock lookup degraded: %v", lockErr)
		var open models.CallSession
		dbErr := s.db.WithContext(ctx).
			Where("((caller_id = ? AND callee_id = ?) OR (caller_id = ? AND callee_id = ?)) AND status IN ?",
				userID, peerID, peerID, userID,
				[]string{models.CallRinging, models.CallActive}).
			First(&open).Error
		if dbErr != nil {
			if dbErr == gorm.ErrRecordNotFound {
				return false, ErrNoActiveCall
			}
			return false, dbErr
		}
		sessionID = open.ID
	}

	var session models.CallSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, ErrNoActiveCall
		}
		return false, err
	}
	if session.IsTerminal() {
		return false, nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"ended_at":         now,
		"ended_by_user_id": userID,
	}
	if session.AnsweredAt != nil {
		duration := int(clientDuration)
		if duration < 0 {
			duration = 0
		}
		updates["status"] = models.CallEnded
		updates["end_reason"] = models.EndReasonCompleted
		updates["duration_seconds"] = duration
	} else {
		// 没接通就挂断 = 主叫取消，时长留空
		updates["status"] = models.CallCancelled
		updates["end_reason"] = models.EndReasonCancelled
		updates["duration_seconds"] = nil
	}

	res := s.db.WithContext(ctx).Model(&models.CallSession{}).
		Where("id = ? AND status IN ?", sessionID,
			[]string{models.CallRinging, models.CallActive}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}

	if err := s.store.Del(ctx, lockKey(userID, peerID), lockKey(peerID, userID)); err != nil {
		log.Printf("Failed to delete call locks: %v", err)
	}
	return res.RowsAffected > 0, nil
}

// Sweep 把振铃超时的会话批量转成 missed。条件更新天然幂等：
// 已经转走的会话下一轮不再匹配。
func (s *CallService) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-noAnswerTimeout)
	res := s.db.WithContext(ctx).Model(&models.CallSession{}).
		Where("status = ? AND initiated_at < ?", models.CallRinging, cutoff).
		Updates(map[string]interface{}{
			"status":           models.CallMissed,
			"end_reason":       models.EndReasonNoAnswer,
			"duration_seconds": nil,
			"ended_at":         now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// RunSweeper 固定周期跑 Sweep，独立于任何客户端请求，ctx 取消后退出
func (s *CallService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx, time.Now())
			if err != nil {
				log.Printf("Missed call sweep error: %v", err)
				continue
			}
			if n > 0 {
				metrics.CallsSweptTotal.Add(float64(n))
				log.Printf("Marked %d calls as missed", n)
			}
		}
	}
}

// Session 按 ID 读会话，通知链路和测试用
func (s *CallService) Session(ctx context.Context, id string) (*models.CallSession, error) {
	var session models.CallSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}
