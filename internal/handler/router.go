package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/handler/persona"
	"github.com/zhouzirui/toddler-chat/backend/internal/handler/speech"
	"github.com/zhouzirui/toddler-chat/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/toddler-chat/backend/internal/middleware"
	personaModel "github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/events"
	speechService "github.com/zhouzirui/toddler-chat/backend/internal/service/speech"
	"github.com/zhouzirui/toddler-chat/backend/pkg/utils"
)

// Services are the collaborators behind the HTTP surface. Speech may be nil.
type Services struct {
	Personas personaModel.Store
	Dialogue *dialogue.Service
	Events   *events.Hub
	Speech   *speechService.Service
	Logger   *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	logger := svc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.ZapLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// speech 为空时仍注册路由, 识别请求返回 503
	var recognizer speech.Recognizer
	if svc.Speech != nil {
		recognizer = svc.Speech
	}

	r.Route("/api", func(api chi.Router) {
		persona.New(svc.Personas, svc.Dialogue).RegisterRoutes(api)
		chat.New(svc.Dialogue, logger).RegisterRoutes(api)
		stream.New(svc.Dialogue, svc.Events, logger).RegisterRoutes(api)
		speech.New(recognizer, svc.Dialogue, logger).RegisterRoutes(api)
		speech.NewWebSocketHandler(recognizer, svc.Dialogue, svc.Events, logger).RegisterWebSocketRoutes(api)
	})

	return r
}
