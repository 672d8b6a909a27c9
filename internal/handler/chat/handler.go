package chat

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/handler/apierr"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/catalog"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/family"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
	"github.com/zhouzirui/toddler-chat/backend/pkg/utils"
)

// Handler 聊天会话的HTTP处理器
type Handler struct {
	dialogue *dialogue.Service
	logger   *zap.Logger
}

// New 创建聊天处理器
func New(dialogueSvc *dialogue.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		dialogue: dialogueSvc,
		logger:   logger.Named("ChatHandler"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/store/items", h.handleListItems)
	r.Post("/sessions", h.handleOpenSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleSnapshot)
		r.Post("/parent", h.handleSelectParent)
		r.Post("/conversation", h.handleStartConversation)
		r.Post("/reset", h.handleReset)
		r.Post("/family/randomize", h.handleRandomizeFamily)
		r.Get("/appearance", h.handleAppearance)
		r.Get("/messages", h.handleTranscript)
		r.Post("/messages", h.handleSendMessage)
		r.Post("/games", h.handleStartGame)
		r.Post("/voice", h.handleSetVoice)
		r.Post("/store/{itemID}", h.handleBuy)
		r.Get("/milestones", h.handleMilestones)
		r.Post("/ads/rewarded", h.handleRewardedAd)
	})
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, catalog.Items())
}

// handleOpenSession 打开或恢复会话, body 可为空
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.dialogue.OpenSession(r.Context(), payload.ID)
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.dialogue.Snapshot(sessionID(r))
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleSelectParent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role family.Role `json:"role"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.dialogue.SelectParent(r.Context(), sessionID(r), payload.Role)
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Child string `json:"child"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Child == "" {
		respondError(w, http.StatusBadRequest, "child is required")
		return
	}

	greeting, err := h.dialogue.StartConversation(r.Context(), sessionID(r), payload.Child)
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, greeting)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	snap, err := h.dialogue.Reset(r.Context(), sessionID(r))
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleRandomizeFamily(w http.ResponseWriter, r *http.Request) {
	fam, err := h.dialogue.RandomizeFamily(sessionID(r))
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, fam)
}

func (h *Handler) handleAppearance(w http.ResponseWriter, r *http.Request) {
	child := r.URL.Query().Get("child")
	if child == "" {
		respondError(w, http.StatusBadRequest, "child query parameter is required")
		return
	}
	desc, err := h.dialogue.Appearance(sessionID(r), child)
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"child": child, "appearance": desc})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.dialogue.Transcript(r.Context(), sessionID(r))
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

// handleSendMessage 发送一轮对话
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text    string `json:"text"`
		Context string `json:"context"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.dialogue.SendMessage(r.Context(), sessionID(r), payload.Text, payload.Context)
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Game string `json:"game"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.dialogue.StartGame(r.Context(), sessionID(r), payload.Game)
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSetVoice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil || payload.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := h.dialogue.SetVoice(sessionID(r), *payload.Enabled); err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"voice": *payload.Enabled})
}

func (h *Handler) handleBuy(w http.ResponseWriter, r *http.Request) {
	res, err := h.dialogue.Buy(r.Context(), sessionID(r), chi.URLParam(r, "itemID"))
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleMilestones(w http.ResponseWriter, r *http.Request) {
	ms, err := h.dialogue.Milestones(sessionID(r))
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, ms)
}

func (h *Handler) handleRewardedAd(w http.ResponseWriter, r *http.Request) {
	st, err := h.dialogue.WatchRewardedAd(sessionID(r))
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// respondJSON 发送JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	_ = utils.RespondJSON(w, status, payload)
}

// respondError 发送错误响应
func respondError(w http.ResponseWriter, status int, message string) {
	_ = utils.RespondError(w, status, message)
}
