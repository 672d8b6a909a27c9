package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
	"github.com/zhouzirui/toddler-chat/backend/pkg/utils"
)

// Sessions exposes the progress of a household.
type Sessions interface {
	Snapshot(id string) (dialogue.Snapshot, error)
}

// Handler 孩子列表的HTTP处理器
type Handler struct {
	personas persona.Store
	sessions Sessions
}

// New 创建persona处理器
func New(personas persona.Store, sessions Sessions) *Handler {
	return &Handler{
		personas: personas,
		sessions: sessions,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/children", h.handleListChildren)
}

type childView struct {
	persona.Persona
	Locked bool `json:"locked"`
}

// handleListChildren 列出所有孩子; ?session= 按该家庭的进度计算锁定状态
func (h *Handler) handleListChildren(w http.ResponseWriter, r *http.Request) {
	unlocked := false
	if id := r.URL.Query().Get("session"); id != "" && h.sessions != nil {
		if snap, err := h.sessions.Snapshot(id); err == nil {
			unlocked = snap.Economy.CanUnlockBoth
		}
	}

	personas := h.personas.List()
	views := make([]childView, 0, len(personas))
	for _, p := range personas {
		views = append(views, childView{Persona: p, Locked: !persona.Selectable(p, unlocked)})
	}
	_ = utils.RespondJSON(w, http.StatusOK, views)
}
