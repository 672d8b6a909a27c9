package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/zhouzirui/toddler-chat/backend/internal/config"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
)

// GeminiService generates replies with Gemini's structured JSON output.
type GeminiService struct {
	client      *genai.Client
	modelName   string
	temperature float32
	logger      *zap.Logger
}

var _ Generator = (*GeminiService)(nil)

func NewGeminiService(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*GeminiService, error) {
	if !cfg.Enabled() {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiService{
		client:      client,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger.Named("GeminiGenerator"),
	}, nil
}

func (s *GeminiService) Close() error {
	return s.client.Close()
}

var childResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"text":                {Type: genai.TypeString},
		"activityDescription": {Type: genai.TypeString},
		"emotion":             {Type: genai.TypeString},
	},
	Required: []string{"text", "activityDescription", "emotion"},
}

// GenerateChildResponse sends Message on a chat seeded with the history.
func (s *GeminiService) GenerateChildResponse(ctx context.Context, req ChildRequest) (ChildResponse, error) {
	// GenerativeModel carries per-request config, so every call gets its own.
	model := s.client.GenerativeModel(s.modelName)
	if s.temperature > 0 {
		model.SetTemperature(s.temperature)
	}
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(BuildSystemPrompt(req))}}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = childResponseSchema

	cs := model.StartChat()
	cs.History = buildGeminiHistory(req.History)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return ChildResponse{}, fmt.Errorf("Gemini API error: %w", err)
	}
	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.logger.Warn("gemini stopped early", zap.Int("candidate", i), zap.String("reason", cand.FinishReason.String()))
		}
	}

	out, err := ParseChildResponse(extractText(resp))
	if err != nil {
		return ChildResponse{}, fmt.Errorf("failed to parse Gemini output: %w", err)
	}
	return out, nil
}

// buildGeminiHistory maps the transcript onto Gemini roles, folding
// consecutive turns of the same role into one content.
func buildGeminiHistory(messages []chat.Message) []*genai.Content {
	var history []*genai.Content
	for _, msg := range messages {
		role := "user"
		if msg.Role == chat.RoleModel {
			role = "model"
		}
		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, genai.Text(msg.Text))
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Text)}})
	}
	return history
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
