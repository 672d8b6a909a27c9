package speech

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/handler/apierr"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/speech"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
	speechsvc "github.com/zhouzirui/toddler-chat/backend/internal/service/speech"
	"github.com/zhouzirui/toddler-chat/backend/pkg/utils"
)

// maxAudioBytes caps one utterance, uploaded or streamed.
const maxAudioBytes = 32 << 20

// NotHeardNotice is returned when an utterance produced no text.
const NotHeardNotice = "Could not hear you! Try typing."

// Recognizer 抽象语音识别，便于测试与替换实现
type Recognizer interface {
	RecognitionEnabled() bool
	TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error)
}

// Turns runs conversational turns for recognised speech.
type Turns interface {
	SendMessage(ctx context.Context, id, text, contextAction string) (dialogue.TurnResult, error)
	Snapshot(id string) (dialogue.Snapshot, error)
	SetVoice(id string, enabled bool) error
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	recognizer Recognizer
	turns      Turns
	logger     *zap.Logger
}

// New 创建语音处理器
func New(recognizer Recognizer, turns Turns, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		recognizer: recognizer,
		turns:      turns,
		logger:     logger.Named("SpeechHandler"),
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/{sessionID}/speech/transcribe", h.handleTranscribe)
	r.Get("/speech/health", h.handleHealth)
}

type transcribeResponse struct {
	Transcript string              `json:"transcript"`
	Turn       dialogue.TurnResult `json:"turn"`
}

// handleTranscribe 识别上传的语音并作为一轮对话发送
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.turns.Snapshot(sessionID); err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	if h.recognizer == nil || !h.recognizer.RecognitionEnabled() {
		apierr.Write(w, speechsvc.ErrRecognitionUnavailable, h.logger)
		return
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		_ = utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		_ = utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	asrResp, err := h.recognizer.TranscribeAudio(r.Context(), &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    inferAudioFormat(header.Filename),
		Language:  r.FormValue("language"),
	})
	if err != nil {
		h.logger.Warn("speech recognition failed", zap.String("session", sessionID), zap.Error(err))
		_ = utils.RespondError(w, http.StatusUnprocessableEntity, NotHeardNotice)
		return
	}
	transcript := strings.TrimSpace(asrResp.Text)
	if transcript == "" {
		_ = utils.RespondError(w, http.StatusUnprocessableEntity, NotHeardNotice)
		return
	}

	turn, err := h.turns.SendMessage(r.Context(), sessionID, transcript, "")
	if err != nil {
		apierr.Write(w, err, h.logger)
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, transcribeResponse{Transcript: transcript, Turn: turn})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.recognizer == nil || !h.recognizer.RecognitionEnabled() {
		status = "recognition disabled"
	}
	_ = utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "speech",
	})
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".ogg", ".mp4":
		return strings.TrimPrefix(ext, ".")
	default:
		return "webm"
	}
}
