package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/mood"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/family"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
)

type fakeChatModel struct {
	reply string
	err   error
	input []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func child(t *testing.T, id string) persona.Persona {
	t.Helper()
	p, ok := persona.NewMemoryStore(persona.Seed()).FindByID(id)
	require.True(t, ok)
	return p
}

func TestBuildSystemPromptSingleChild(t *testing.T) {
	got := BuildSystemPrompt(ChildRequest{
		Child:      child(t, persona.BillyID),
		ParentRole: family.Dada,
		Mood:       mood.Grumpy,
	})

	assert.Contains(t, got, "You are roleplaying as a 2-year-old child named Billy.")
	assert.Contains(t, got, "The user is your Dada.")
	assert.Contains(t, got, "CONTEXT: You are currently feeling GRUMPY.")
	assert.Contains(t, got, "twuck -> truck")
	assert.Contains(t, got, `"activityDescription"`)
	assert.NotContains(t, got, "SIBLING DYNAMICS")
	assert.NotContains(t, got, "GAME MODE ACTIVE")
}

func TestBuildSystemPromptSiblingsWithGame(t *testing.T) {
	got := BuildSystemPrompt(ChildRequest{
		Child:      child(t, persona.BothID),
		ParentRole: family.Momma,
		Mood:       mood.Happy,
		Game:       "Colors",
	})

	assert.Contains(t, got, "You are roleplaying TWO toddlers")
	assert.Contains(t, got, "SIBLING DYNAMICS")
	assert.Contains(t, got, "GAME MODE ACTIVE: Colors")
	assert.Less(t, strings.Index(got, "GAME MODE"), strings.Index(got, "SIBLING DYNAMICS"))
}

func TestParseChildResponse(t *testing.T) {
	resp, err := ParseChildResponse("```json\n{\"text\":\"Hewo!\",\"activityDescription\":\"waving\",\"emotion\":\"happy\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, ChildResponse{Text: "Hewo!", ActivityDescription: "waving", Emotion: "happy"}, resp)

	_, err = ParseChildResponse("no json here")
	assert.ErrorIs(t, err, errMissingJSON)

	_, err = ParseChildResponse("{broken}")
	assert.Error(t, err)
}

func TestChainServiceSendsPromptHistoryAndQuery(t *testing.T) {
	fake := &fakeChatModel{reply: `{"text":"Me pway!","activityDescription":"playing with ball","emotion":"excited"}`}
	svc, err := NewChainService(context.Background(), fake, nil)
	require.NoError(t, err)

	resp, err := svc.GenerateChildResponse(context.Background(), ChildRequest{
		Message: "want to play?",
		History: []chat.Message{
			{Role: chat.RoleModel, Text: "Hewo! Pway twuck?"},
			{Role: chat.RoleUser, Text: "hi buddy"},
		},
		Child:      child(t, persona.BillyID),
		ParentRole: family.Momma,
		Mood:       mood.Happy,
	})
	require.NoError(t, err)
	assert.Equal(t, "Me pway!", resp.Text)

	require.Len(t, fake.input, 4)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Contains(t, fake.input[0].Content, "named Billy")
	assert.Equal(t, schema.Assistant, fake.input[1].Role)
	assert.Equal(t, schema.User, fake.input[2].Role)
	assert.Equal(t, "want to play?", fake.input[3].Content)
}

func TestChainServiceErrors(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("quota")}
	svc, err := NewChainService(context.Background(), fake, nil)
	require.NoError(t, err)

	_, err = svc.GenerateChildResponse(context.Background(), ChildRequest{Message: "x", Child: child(t, persona.SarahID)})
	assert.Error(t, err)

	fake.err, fake.reply = nil, "Waaah"
	_, err = svc.GenerateChildResponse(context.Background(), ChildRequest{Message: "x", Child: child(t, persona.SarahID)})
	assert.Error(t, err)
}

func TestBuildGeminiHistoryFoldsSameRole(t *testing.T) {
	history := buildGeminiHistory([]chat.Message{
		{Role: chat.RoleModel, Text: "Hewo!"},
		{Role: chat.RoleUser, Text: "[GAME START: Colors] Let's learn colors!"},
		{Role: chat.RoleUser, Text: "[System: Child reacts to Colors game]"},
		{Role: chat.RoleModel, Text: "Wed!"},
	})

	require.Len(t, history, 3)
	assert.Equal(t, "model", history[0].Role)
	assert.Equal(t, "user", history[1].Role)
	assert.Len(t, history[1].Parts, 2)
	assert.Equal(t, genai.Text("Wed!"), history[2].Parts[0])
}

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"text":`), genai.Text(`"hi"}`)}}},
	}}
	assert.Equal(t, `{"text":"hi"}`, extractText(resp))
	assert.Empty(t, extractText(nil))
}

func TestFallbackResponse(t *testing.T) {
	fb := FallbackResponse()
	assert.Equal(t, "Waaah! (Technical Error)", fb.Text)
	assert.Equal(t, "Sitting on floor looking confused", fb.ActivityDescription)
	assert.Equal(t, "sad", fb.Emotion)
}
