package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/handler/apierr"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/events"
	"github.com/zhouzirui/toddler-chat/backend/pkg/utils"
)

// DefaultHeartbeat keeps idle proxies from closing the stream.
const DefaultHeartbeat = 15 * time.Second

// Sessions resolves play sessions for the stream.
type Sessions interface {
	Snapshot(id string) (dialogue.Snapshot, error)
}

// Subscriber delivers the events of one play session.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan events.Event, func())
}

// Handler streams play-session events via Server-Sent Events
type Handler struct {
	sessions  Sessions
	events    Subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// New creates a new stream handler
func New(sessions Sessions, subscriber Subscriber, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions:  sessions,
		events:    subscriber,
		heartbeat: DefaultHeartbeat,
		logger:    logger.Named("Stream"),
	}
}

// RegisterRoutes registers the event stream endpoint
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

// handleEvents opens the stream with a snapshot and then forwards every
// event until the client goes away.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	snap, err := h.sessions.Snapshot(sessionID)
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, unsubscribe := h.events.Subscribe(sessionID)
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "snapshot", snap); err != nil {
		return
	}
	h.logger.Debug("event stream opened", zap.String("session", sessionID))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("event stream closed", zap.String("session", sessionID))
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
