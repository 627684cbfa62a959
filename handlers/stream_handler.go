package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ai_tips_engine/config"
	"ai_tips_engine/logger"
	"ai_tips_engine/models"
	"ai_tips_engine/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 前端和服务端不同源部署，来源校验交给网关层
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	authDeadline  = 10 * time.Second
	writeDeadline = 10 * time.Second
)

// StreamTipsHandler godoc
// @Summary 流式查询个性化育儿小贴士（WebSocket）
// @Description 升级为WebSocket后客户端第一帧必须是{"token":...}鉴权帧，第二帧是查询请求；服务端逐条下发{type: phase|tip|batch|done|error}
// @Tags 小贴士
// @Param token body models.StreamAuthRequest true "鉴权帧"
// @Success 101 {string} string "Switching Protocols"
// @Router /api/tips/stream [get]
func StreamTipsHandler(w http.ResponseWriter, r *http.Request, cfg *config.Config) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", "error", err.Error())
		return
	}
	defer conn.Close()

	writeMessage := func(msg models.StreamMessage) error {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		return conn.WriteJSON(msg)
	}

	// 第一帧必须是鉴权帧，限时等待
	conn.SetReadDeadline(time.Now().Add(authDeadline))
	var auth models.StreamAuthRequest
	if err := conn.ReadJSON(&auth); err != nil {
		writeMessage(models.StreamMessage{Type: models.StreamTypeError, Message: models.CodeMessages[models.CodeStreamAuthFail]})
		return
	}
	if cfg.Stream.AuthToken == "" ||
		subtle.ConstantTimeCompare([]byte(auth.Token), []byte(cfg.Stream.AuthToken)) != 1 {
		logger.Warn("流式连接鉴权失败", "remote", r.RemoteAddr)
		writeMessage(models.StreamMessage{Type: models.StreamTypeError, Message: models.CodeMessages[models.CodeStreamAuthFail]})
		return
	}

	// 第二帧是查询请求
	conn.SetReadDeadline(time.Now().Add(authDeadline))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req models.TipsQueryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		writeMessage(models.StreamMessage{Type: models.StreamTypeError, Message: models.CodeMessages[models.CodeInvalidParams]})
		return
	}

	// 客户端断开时取消整条生成链路
	// 升级后的连接不会随请求context结束，靠读泵感知断开
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn.SetReadDeadline(time.Time{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	logger.Info("流式查询开始", "user_id", req.UserID, "prompt_len", len(req.Prompt))

	if err := services.Tips().StreamContextualTips(ctx, &req, writeMessage); err != nil {
		logger.Warn("流式查询结束于错误", "user_id", req.UserID, "error", err.Error())
	}
}
