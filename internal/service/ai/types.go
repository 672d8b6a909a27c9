package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/mood"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/family"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
)

// ChildRequest carries everything the text generator needs for one reply.
type ChildRequest struct {
	Message string
	// History is the transcript before Message, oldest first.
	History    []chat.Message
	Child      persona.Persona
	ParentRole family.Role
	Mood       mood.Mood
	// Game is the active learning game, empty when none.
	Game string
}

// ChildResponse is the structured reply of the generator.
type ChildResponse struct {
	Text                string `json:"text"`
	ActivityDescription string `json:"activityDescription"`
	Emotion             string `json:"emotion"`
}

// Generator produces the child's next line.
type Generator interface {
	GenerateChildResponse(ctx context.Context, req ChildRequest) (ChildResponse, error)
}

// FallbackResponse is used whenever generation fails.
func FallbackResponse() ChildResponse {
	return ChildResponse{
		Text:                "Waaah! (Technical Error)",
		ActivityDescription: "Sitting on floor looking confused",
		Emotion:             "sad",
	}
}

var errMissingJSON = errors.New("missing json object")

// ParseChildResponse extracts the JSON object from model output, tolerating
// code fences or chatter around it.
func ParseChildResponse(content string) (ChildResponse, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return ChildResponse{}, errMissingJSON
	}

	var resp ChildResponse
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &resp); err != nil {
		return ChildResponse{}, err
	}
	return resp, nil
}
