package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/handler/apierr"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/events"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	// base64 audio plus the JSON envelope
	maxMessageSize = maxAudioBytes/3*4 + 4<<10
)

// AudioTooLongNotice is sent when buffered audio exceeds the limit.
const AudioTooLongNotice = "That was too long! Try a shorter one."

// Subscriber delivers the events of one play session.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan events.Event, func())
}

// WebSocketHandler WebSocket会话处理器: 推送会话事件, 接收文字与语音轮次
type WebSocketHandler struct {
	recognizer Recognizer
	turns      Turns
	events     Subscriber
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	audioLimit int
	readLimit  int64
}

// NewWebSocketHandler 创建WebSocket处理器. recognizer 可为空
func NewWebSocketHandler(recognizer Recognizer, turns Turns, subscriber Subscriber, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		recognizer: recognizer,
		turns:      turns,
		events:     subscriber,
		logger:     logger.Named("WebSocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		audioLimit: maxAudioBytes,
		readLimit:  maxMessageSize,
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// AudioMessage 音频消息
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language string `json:"language"`
	Voice    *bool  `json:"voice,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	language    string
	audioFormat string
	buffer      bytes.Buffer
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	snap, err := h.turns.Snapshot(sessionID)
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	h.logger.Info("websocket connected", zap.String("session", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	raw.SetReadLimit(h.readLimit)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, conn)
	if h.events != nil {
		stream, unsubscribe := h.events.Subscribe(sessionID)
		defer unsubscribe()
		go h.pumpEvents(ctx, conn, stream)
	}

	state := &connectionState{sessionID: sessionID}
	h.sendResult(conn, sessionID, map[string]any{
		"type":  "connected",
		"stage": snap.Session.Stage,
		"voice": snap.Voice,
	})

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("session", sessionID), zap.Error(err))
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}
		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) pumpEvents(ctx context.Context, conn *wsConn, stream <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if err := conn.writeJSON(outgoingMessage{
				Type:      string(ev.Type),
				SessionID: ev.SessionID,
				Data:      ev.Data,
				Timestamp: ev.Timestamp,
			}); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigMessage(conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *wsConn, state *connectionState, raw json.RawMessage) {
	if h.recognizer == nil || !h.recognizer.RecognitionEnabled() {
		h.sendResult(conn, state.sessionID, map[string]any{"type": "asr", "enabled": false})
		return
	}

	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}
	if state.buffer.Len()+len(audio.AudioData) > h.audioLimit {
		state.buffer.Reset()
		h.sendError(conn, AudioTooLongNotice)
		return
	}
	state.buffer.Write(audio.AudioData)
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}

	if audio.IsFinal {
		h.processBufferedAudio(ctx, conn, state)
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *wsConn, state *connectionState) {
	audioBytes := append([]byte(nil), state.buffer.Bytes()...)
	state.buffer.Reset()
	if len(audioBytes) == 0 {
		return
	}

	format := state.audioFormat
	if format == "" {
		format = "webm"
	}

	asrResp, err := h.recognizer.TranscribeBuffer(ctx, state.sessionID, audioBytes, format, state.language)
	if err != nil || strings.TrimSpace(asrResp.Text) == "" {
		h.sendError(conn, NotHeardNotice)
		return
	}

	text := strings.TrimSpace(asrResp.Text)
	h.sendResult(conn, state.sessionID, map[string]any{"type": "asr", "text": text})
	h.runTurn(ctx, conn, state, text, "")
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *wsConn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	h.runTurn(ctx, conn, state, text.Text, text.Context)
}

func (h *WebSocketHandler) runTurn(ctx context.Context, conn *wsConn, state *connectionState, text, contextAction string) {
	turn, err := h.turns.SendMessage(ctx, state.sessionID, text, contextAction)
	switch {
	case dialogue.Ignored(err):
		h.sendResult(conn, state.sessionID, map[string]any{"type": "turn", "status": apierr.StatusIgnored, "reason": err.Error()})
	case err != nil:
		h.logger.Warn("websocket turn failed", zap.String("session", state.sessionID), zap.Error(err))
		h.sendError(conn, err.Error())
	default:
		h.sendResult(conn, state.sessionID, map[string]any{"type": "turn", "turn": turn})
	}
}

func (h *WebSocketHandler) handleConfigMessage(conn *wsConn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}
	if err := h.applyConfig(state, cfg); err != nil {
		h.sendError(conn, err.Error())
		return
	}

	snap, err := h.turns.Snapshot(state.sessionID)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}
	h.sendResult(conn, state.sessionID, map[string]any{
		"type":     "config",
		"language": state.language,
		"voice":    snap.Voice,
	})
}

func (h *WebSocketHandler) applyConfig(state *connectionState, cfg ConfigMessage) error {
	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.Voice != nil {
		return h.turns.SetVoice(state.sessionID, *cfg.Voice)
	}
	return nil
}

func (h *WebSocketHandler) sendResult(conn *wsConn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
