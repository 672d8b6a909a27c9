package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/mood"
	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/profanity"
	"github.com/zhouzirui/toddler-chat/backend/internal/metrics"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/catalog"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/speech"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/ads"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/ai"
	chatsvc "github.com/zhouzirui/toddler-chat/backend/internal/service/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/economy"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/events"
	familysvc "github.com/zhouzirui/toddler-chat/backend/internal/service/family"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/imagegen"
)

const (
	filteredReplyText   = "No say bad words! 🥺"
	filteredReplyAction = "covering ears looking sad"
	filteredImageAction = "covering ears sad"
	toddlerSaysPhrase   = "toddler says"
	greetingImageAction = "waving hello happy"
	playKeywordPlaying  = "playing"
	playKeywordBall     = "ball"
)

// Status tells how a turn ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFiltered  Status = "filtered"
	StatusAd        Status = "ad"
)

// TurnResult is what one user turn produced.
type TurnResult struct {
	Status      Status        `json:"status"`
	UserMessage *chat.Message `json:"userMessage,omitempty"`
	Reply       *chat.Message `json:"reply,omitempty"`
	Mood        mood.Mood     `json:"mood"`
	Coins       int           `json:"coins"`
	Ad          *ads.State    `json:"ad,omitempty"`
}

// Games lists the learning games with their opening line.
var Games = map[string]string{
	"Colors":   "Let's learn colors! What color is the Apple?",
	"Shapes":   "Let's find shapes! Do you see a Circle?",
	"Counting": "Let's count! One, Two...",
}

// SendMessage runs one conversational turn. contextAction is an optional
// stage direction prepended to the text, e.g. "*gives Apple*".
func (s *Service) SendMessage(ctx context.Context, id, text, contextAction string) (TurnResult, error) {
	ps, err := s.get(id)
	if err != nil {
		return TurnResult{}, err
	}
	if strings.TrimSpace(text) == "" && strings.TrimSpace(contextAction) == "" {
		metrics.TurnsTotal.WithLabelValues("ignored").Inc()
		return TurnResult{}, ErrEmptyMessage
	}

	release, child, err := ps.acquire()
	if err != nil {
		if Ignored(err) {
			metrics.TurnsTotal.WithLabelValues("ignored").Inc()
		}
		return TurnResult{}, err
	}
	defer release()

	return s.runTurn(ctx, ps, child, release, text, contextAction)
}

// runTurn expects the turn token to be held; release is called as soon as
// the reply is on the transcript.
func (s *Service) runTurn(ctx context.Context, ps *playSession, child persona.Persona, release func(), text, contextAction string) (TurnResult, error) {
	// A started turn commits even if the caller hangs up mid-generation.
	ctx = context.WithoutCancel(ctx)
	touch(ps)

	if s.deps.Filter.Contains(text) {
		return s.filteredTurn(ctx, ps, child)
	}

	fullMessage := strings.TrimSpace(contextAction + " " + text)
	if strings.Contains(strings.ToLower(fullMessage), toddlerSaysPhrase) {
		ps.ledger.Unlock(catalog.MilestoneGamer)
	}

	if ps.ads.CountTurn() {
		metrics.TurnsTotal.WithLabelValues(string(StatusAd)).Inc()
		st := ps.ads.State()
		return TurnResult{Status: StatusAd, Mood: ps.mood.Current(), Coins: ps.ledger.Coins(), Ad: &st}, nil
	}

	ps.ledger.RecordMessage(ctx)
	userMsg, err := s.appendMessage(ctx, ps.id, chat.Message{Role: chat.RoleUser, Text: fullMessage})
	if err != nil {
		return TurnResult{}, err
	}
	before := ps.mood.Current()
	current := ps.mood.Roll()
	if current != before {
		s.publish(ps.id, events.TypeMood, map[string]mood.Mood{"mood": current})
	}

	transcript, err := s.deps.Chat.LoadTranscript(ctx, ps.id)
	if err != nil {
		return TurnResult{}, err
	}
	history := make([]chat.Message, 0, len(transcript))
	for _, m := range transcript {
		if m.ID < userMsg.ID {
			history = append(history, m)
		}
	}

	ps.mu.Lock()
	req := ai.ChildRequest{
		Message:    fullMessage,
		History:    history,
		Child:      child,
		ParentRole: ps.parent,
		Mood:       current,
		Game:       ps.game,
	}
	voice := ps.voice
	fam := ps.fam
	ps.mu.Unlock()

	resp := s.generateText(ctx, ps.id, req)

	outcome := ps.mood.ApplyEmotion(resp.Emotion)
	if outcome.Bonus > 0 {
		coins := ps.ledger.AddCoins(ctx, outcome.Bonus)
		s.publish(ps.id, events.TypeCoins, map[string]int{"coins": coins})
	}
	switch {
	case outcome.EnteredTantrum():
		ps.ledger.Unlock(catalog.MilestoneTantrumTamer)
		s.cue(ps.id, speech.CueCry)
	case outcome.BecameHappy():
		s.cue(ps.id, speech.CueGiggle)
	}
	if outcome.Current != outcome.Previous || outcome.Matched {
		s.publish(ps.id, events.TypeMood, map[string]mood.Mood{"mood": outcome.Current})
	}

	activity := strings.ToLower(resp.ActivityDescription)
	if strings.Contains(activity, playKeywordPlaying) || strings.Contains(activity, playKeywordBall) {
		s.cue(ps.id, speech.CuePlay)
	}

	reply, err := s.appendMessage(ctx, ps.id, chat.Message{
		Role:     chat.RoleModel,
		Text:     resp.Text,
		Activity: resp.ActivityDescription,
	})
	release()
	if err != nil {
		return TurnResult{}, err
	}

	if voice {
		s.speak(ps.id, child, reply.Text)
	}
	if reply.Activity != "" {
		clothing, toy := ps.ledger.Equipped()
		s.generateImage(ps.id, reply.ID, imagegen.Request{
			Child:      child,
			Activity:   reply.Activity,
			Mood:       string(outcome.Current),
			Appearance: familysvc.ToddlerAppearance(fam, child),
			Extras:     imagegen.Extras(clothing, toy),
		})
	}

	metrics.TurnsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	return TurnResult{
		Status:      StatusCompleted,
		UserMessage: &userMsg,
		Reply:       &reply,
		Mood:        outcome.Current,
		Coins:       ps.ledger.Coins(),
	}, nil
}

func (s *Service) filteredTurn(ctx context.Context, ps *playSession, child persona.Persona) (TurnResult, error) {
	userMsg, err := s.appendMessage(ctx, ps.id, chat.Message{Role: chat.RoleUser, Text: profanity.FilteredPlaceholder})
	if err != nil {
		return TurnResult{}, err
	}
	reply, err := s.appendMessage(ctx, ps.id, chat.Message{
		Role:     chat.RoleModel,
		Text:     filteredReplyText,
		Activity: filteredReplyAction,
	})
	if err != nil {
		return TurnResult{}, err
	}

	ps.mu.Lock()
	fam := ps.fam
	ps.mu.Unlock()
	s.generateImage(ps.id, reply.ID, imagegen.Request{
		Child:      child,
		Activity:   filteredImageAction,
		Mood:       "sad",
		Appearance: familysvc.ToddlerAppearance(fam, child),
	})

	metrics.TurnsTotal.WithLabelValues(string(StatusFiltered)).Inc()
	s.logger.Info("filtered message", zap.String("session", ps.id))
	return TurnResult{
		Status:      StatusFiltered,
		UserMessage: &userMsg,
		Reply:       &reply,
		Mood:        ps.mood.Current(),
		Coins:       ps.ledger.Coins(),
	}, nil
}

// StartGame opens a learning game and lets the child react to it.
func (s *Service) StartGame(ctx context.Context, id, game string) (TurnResult, error) {
	intro, ok := Games[game]
	if !ok {
		return TurnResult{}, fmt.Errorf("%q: %w", game, ErrUnknownGame)
	}
	ps, err := s.get(id)
	if err != nil {
		return TurnResult{}, err
	}
	release, child, err := ps.acquire()
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	ps.mu.Lock()
	ps.game = game
	ps.mu.Unlock()
	ps.ledger.Unlock(catalog.MilestoneSmartypants)

	if _, err := s.appendMessage(ctx, id, chat.Message{
		Role: chat.RoleUser,
		Text: fmt.Sprintf("[GAME START: %s] %s", game, intro),
	}); err != nil {
		return TurnResult{}, err
	}
	return s.runTurn(ctx, ps, child, release, "", fmt.Sprintf("[System: Child reacts to %s game]", game))
}

// Buy purchases itemID and hands it to the child in a scripted turn.
func (s *Service) Buy(ctx context.Context, id, itemID string) (TurnResult, error) {
	item, ok := catalog.FindItem(itemID)
	if !ok {
		return TurnResult{}, fmt.Errorf("%q: %w", itemID, ErrUnknownItem)
	}
	ps, err := s.get(id)
	if err != nil {
		return TurnResult{}, err
	}
	release, child, err := ps.acquire()
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	if err := ps.ledger.Buy(ctx, item); err != nil {
		if errors.Is(err, economy.ErrInsufficientFunds) {
			s.publish(id, events.TypeNotice, map[string]string{"message": economy.InsufficientFundsNotice})
		}
		return TurnResult{}, err
	}
	s.publish(id, events.TypeCoins, map[string]int{"coins": ps.ledger.Coins()})
	s.cue(id, speech.CuePop)

	text, action := giftLines(item)
	return s.runTurn(ctx, ps, child, release, text, action)
}

func giftLines(item catalog.StoreItem) (text, action string) {
	if item.Category == catalog.Food {
		return fmt.Sprintf("I have a %s for you!", item.Name), fmt.Sprintf("*gives %s*", item.Name)
	}
	return fmt.Sprintf("Look at your new %s!", item.Name), fmt.Sprintf("*gives new %s*", item.Name)
}

func (s *Service) generateText(ctx context.Context, id string, req ai.ChildRequest) ai.ChildResponse {
	if s.deps.Text == nil {
		return ai.FallbackResponse()
	}
	genCtx, cancel := context.WithTimeout(ctx, s.deps.TextTimeout)
	defer cancel()

	resp, err := s.deps.Text.GenerateChildResponse(genCtx, req)
	if err != nil {
		metrics.GenerationFailuresTotal.WithLabelValues("text").Inc()
		s.logger.Error("child response generation failed", zap.String("session", id), zap.Error(err))
		return ai.FallbackResponse()
	}
	return resp
}

// generateImage renders req in the background and attaches the result to
// message msgID.
func (s *Service) generateImage(id string, msgID int64, req imagegen.Request) {
	if s.deps.Images == nil || s.base.Err() != nil {
		return
	}
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()

		ctx, cancel := context.WithTimeout(s.base, s.deps.ImageTimeout)
		defer cancel()

		image, err := s.deps.Images.GenerateToddlerImage(ctx, req)
		if err != nil {
			metrics.GenerationFailuresTotal.WithLabelValues("image").Inc()
			s.logger.Warn("image generation failed", zap.String("session", id), zap.Int64("message", msgID), zap.Error(err))
			return
		}
		if image == "" {
			return
		}

		msg, err := s.deps.Chat.PatchImage(ctx, id, msgID, image)
		if errors.Is(err, chatsvc.ErrMessageNotFound) {
			s.logger.Debug("dropping image for cleared message", zap.String("session", id), zap.Int64("message", msgID))
			return
		}
		if err != nil {
			s.logger.Warn("failed to attach image", zap.String("session", id), zap.Error(err))
			return
		}
		s.publish(id, events.TypeImage, map[string]any{"messageId": msg.ID, "image": msg.Image})
	}()
}
