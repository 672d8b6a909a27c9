package imagegen

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/config"
)

// Generator turns a Request into a data URI. An empty string with a nil
// error means the backend produced nothing.
type Generator interface {
	GenerateToddlerImage(ctx context.Context, req Request) (string, error)
}

// OpenAIService renders images through an OpenAI compatible images API.
type OpenAIService struct {
	client *openai.Client
	model  string
	size   string
	logger *zap.Logger
}

var _ Generator = (*OpenAIService)(nil)

func NewOpenAIService(cfg config.ImageConfig, logger *zap.Logger) (*OpenAIService, error) {
	if !cfg.Enabled() {
		return nil, errors.New("IMAGE_API_KEY is not configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		size:   cfg.Size,
		logger: logger.Named("ImageGenerator"),
	}, nil
}

func (s *OpenAIService) GenerateToddlerImage(ctx context.Context, req Request) (string, error) {
	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         BuildPrompt(req),
		Model:          s.model,
		N:              1,
		Size:           s.size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		s.logger.Warn("image backend returned no data", zap.String("child", req.Child.ID))
		return "", nil
	}
	return "data:image/png;base64," + resp.Data[0].B64JSON, nil
}
