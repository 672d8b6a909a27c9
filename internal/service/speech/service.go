package speech

import (
	"bytes"
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/metrics"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/speech"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/events"
)

// ErrRecognitionUnavailable is returned when no transcriber is configured.
var ErrRecognitionUnavailable = errors.New("speech recognition unavailable")

// Transcriber recognises one utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
}

// Service recognises audio on the server and hands synthesis and sound
// cues to the browser as events. Synthesis and cues never fail the caller.
type Service struct {
	transcriber Transcriber
	publisher   events.Publisher
	logger      *zap.Logger
}

// NewService wires the speech service. transcriber may be nil.
func NewService(transcriber Transcriber, publisher events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		transcriber: transcriber,
		publisher:   publisher,
		logger:      logger.Named("Speech"),
	}
}

// RecognitionEnabled reports whether TranscribeAudio can succeed.
func (s *Service) RecognitionEnabled() bool {
	return s.transcriber != nil
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if s.transcriber == nil {
		return nil, ErrRecognitionUnavailable
	}
	resp, err := s.transcriber.Transcribe(ctx, req)
	if err != nil {
		metrics.GenerationFailuresTotal.WithLabelValues("speech").Inc()
		s.logger.Warn("transcription failed", zap.String("session", req.SessionID), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error) {
	return s.TranscribeAudio(ctx, &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audioData),
		Format:    format,
		Language:  language,
	})
}

// Speak asks the browser to say text in the child's voice.
func (s *Service) Speak(sessionID, text string, pitch float64) {
	if text == "" {
		return
	}
	s.publisher.Publish(sessionID, events.TypeSpeech, speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Pitch:     pitch,
		Rate:      speech.DefaultRate,
	})
}

// PlayCue asks the browser to play a short sound effect.
func (s *Service) PlayCue(sessionID string, cue speech.Cue) {
	s.publisher.Publish(sessionID, events.TypeCue, map[string]speech.Cue{"cue": cue})
}
