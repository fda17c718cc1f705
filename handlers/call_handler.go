package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/MaheshIMDev/Flick/metrics"
	"github.com/MaheshIMDev/Flick/services"
)

// 通话信令处理。状态机本身在 services.CallService，这里只做载荷校验、
// 结果翻译成客户端事件、以及不落库的透传（offer/answer/ICE）。

func (h *SocketHandler) handleCallOffer(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		Offer          json.RawMessage `json:"offer"`
		To             string          `json:"to"`
		ConversationID string          `json:"conversationId"`
		CallType       string          `json:"callType"` // audio, video
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.To == "" || len(req.Offer) == 0 {
		client.Emit("error", map[string]interface{}{"message": "offer and to are required"})
		return
	}
	if req.CallType != "video" {
		req.CallType = "audio"
	}

	session, raceWon, err := h.calls.Offer(ctx, client.UserID, req.To, req.CallType)
	switch err {
	case nil:
	case services.ErrRaceLost:
		// 对方先占住了，这个呼叫不成立
		client.Emit("call:race_lost", map[string]interface{}{"message": "Call already in progress"})
		return
	case services.ErrCallInProgress:
		client.Emit("call:already_in_progress", map[string]interface{}{"message": "Call already in progress"})
		return
	case services.ErrCalleeOffline:
		client.Emit("call:unavailable", map[string]interface{}{"message": "User is offline"})
		return
	default:
		log.Printf("webrtc_offer error: %v", err)
		client.Emit("error", map[string]interface{}{"message": "Failed to start call"})
		return
	}

	if raceWon {
		// 双向同时拨号，败方的呼叫在这里被取消掉
		h.hub.ToUser(ctx, req.To, "call:race_lost", map[string]interface{}{
			"message": "Call already in progress",
		})
	}

	metrics.CallsInitiatedTotal.WithLabelValues(req.CallType).Inc()

	h.hub.ToUser(ctx, req.To, "webrtc_incoming_call", map[string]interface{}{
		"from":      client.UserID,
		"callType":  req.CallType,
		"sessionId": session.ID,
	})
	h.hub.ToUser(ctx, req.To, "webrtc_offer", map[string]interface{}{
		"offer": req.Offer,
		"from":  client.UserID,
	})
}

func (h *SocketHandler) handleAnswerCall(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		To             string `json:"to"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.To == "" {
		return
	}

	callStart, err := h.calls.Answer(ctx, client.UserID, req.To)
	if err != nil {
		if err == services.ErrNoActiveCall {
			// 锁过期或会话已被收尾，静默
			log.Printf("Call session not found or expired")
			return
		}
		log.Printf("webrtc_answer_call error: %v", err)
		return
	}

	metrics.CallsAnsweredTotal.Inc()

	// 同一个起点发给两边，双方显示的通话时长不受时钟偏差影响
	h.hub.ToUser(ctx, req.To, "call:connected", map[string]interface{}{
		"with":          client.UserID,
		"callStartTime": callStart,
	})
	client.Emit("call:connected", map[string]interface{}{
		"with":          req.To,
		"callStartTime": callStart,
	})
}

// webrtc_answer 纯透传，不落库
func (h *SocketHandler) handleCallAnswerRelay(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		Answer json.RawMessage `json:"answer"`
		To     string          `json:"to"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.To == "" || len(req.Answer) == 0 {
		log.Printf("webrtc_answer with missing payload, dropping")
		return
	}
	h.hub.ToUser(ctx, req.To, "webrtc_answer", map[string]interface{}{
		"answer": req.Answer,
		"from":   client.UserID,
	})
}

// ICE candidate 纯透传，不落库
func (h *SocketHandler) handleICECandidate(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		Candidate json.RawMessage `json:"candidate"`
		To        string          `json:"to"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.To == "" || len(req.Candidate) == 0 {
		log.Printf("webrtc_ice_candidate with missing payload, dropping")
		return
	}
	h.hub.ToUser(ctx, req.To, "webrtc_ice_candidate", map[string]interface{}{
		"candidate": req.Candidate,
		"from":      client.UserID,
	})
}

func (h *SocketHandler) handleRejectCall(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		To             string `json:"to"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.To == "" {
		return
	}

	err := h.calls.Reject(ctx, client.UserID, req.To)
	if err != nil {
		if err == services.ErrNoActiveCall {
			log.Printf("No active call found - already ended")
			return
		}
		log.Printf("webrtc_reject_call error: %v", err)
		return
	}

	h.hub.ToUser(ctx, req.To, "webrtc_call_rejected", map[string]interface{}{
		"from": client.UserID,
	})
}

func (h *SocketHandler) handleEndCall(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		To             string  `json:"to"`
		ConversationID string  `json:"conversationId"`
		CallDuration   float64 `json:"callDuration"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.To == "" {
		return
	}

	ended, err := h.calls.End(ctx, client.UserID, req.To, req.CallDuration)
	if err != nil {
		if err == services.ErrNoActiveCall {
			log.Printf("No active call found - already ended")
			return
		}
		log.Printf("webrtc_end_call error: %v", err)
		return
	}
	if !ended {
		// 重复挂断，对端早就收到过通知了
		return
	}

	h.hub.ToUser(ctx, req.To, "webrtc_call_ended", map[string]interface{}{
		"from": client.UserID,
	})
}
