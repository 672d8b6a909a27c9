package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/toddler-chat/backend/internal/config"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/speech"
)

// WhisperClient recognises speech through an OpenAI compatible
// transcription endpoint.
type WhisperClient struct {
	client   *openai.Client
	model    string
	language string
	timeout  time.Duration
}

func NewWhisperClient(cfg config.SpeechConfig) (*WhisperClient, error) {
	if !cfg.Enabled() {
		return nil, errors.New("SPEECH_API_KEY is not configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperClient{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: cfg.Language,
		timeout:  cfg.Timeout,
	}, nil
}

// Transcribe sends one utterance and returns its text.
func (c *WhisperClient) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if req == nil || req.AudioData == nil {
		return nil, errors.New("audio data is required")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	format := req.Format
	if format == "" {
		format = "wav"
	}
	language := whisperLanguage(req.Language)
	if language == "" {
		language = whisperLanguage(c.language)
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "utterance." + format,
		Reader:   req.AudioData,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	return &speech.ASRResponse{
		SessionID: req.SessionID,
		Text:      strings.TrimSpace(resp.Text),
		Language:  resp.Language,
		Duration:  resp.Duration,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// whisperLanguage reduces a BCP 47 tag such as "en-US" to the ISO-639-1
// code Whisper accepts.
func whisperLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
