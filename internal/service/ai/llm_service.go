package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/config"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
)

// ArkService generates replies through an eino chain on a Volcengine Ark model.
type ArkService struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

var _ Generator = (*ArkService)(nil)

// NewArkService creates the Ark chat model from cfg and compiles the chain.
func NewArkService(ctx context.Context, cfg config.ArkConfig, logger *zap.Logger) (*ArkService, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewChainService(ctx, chatModel, logger)
}

// NewChainService compiles the prompt chain around any eino chat model.
func NewChainService(ctx context.Context, chatModel model.ChatModel, logger *zap.Logger) (*ArkService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkService{
		chatModel: chatModel,
		chain:     runnable,
		logger:    logger.Named("ArkGenerator"),
	}, nil
}

// GenerateChildResponse runs the chain and parses the JSON reply.
func (s *ArkService) GenerateChildResponse(ctx context.Context, req ChildRequest) (ChildResponse, error) {
	input := map[string]any{
		"system":  BuildSystemPrompt(req),
		"history": buildHistoryMessages(req.History),
		"query":   req.Message,
	}

	msg, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return ChildResponse{}, fmt.Errorf("failed to run AI chain: %w", err)
	}

	resp, err := ParseChildResponse(msg.Content)
	if err != nil {
		return ChildResponse{}, fmt.Errorf("failed to parse AI output: %w", err)
	}

	s.logger.Debug("generated reply",
		zap.String("child", req.Child.ID),
		zap.String("emotion", resp.Emotion),
		zap.Int("length", len(resp.Text)))
	return resp, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.RoleModel:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}
