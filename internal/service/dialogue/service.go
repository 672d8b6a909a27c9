package dialogue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/mood"
	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/profanity"
	"github.com/zhouzirui/toddler-chat/backend/internal/metrics"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/catalog"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/family"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/speech"
	"github.com/zhouzirui/toddler-chat/backend/internal/random"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/ads"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/ai"
	chatsvc "github.com/zhouzirui/toddler-chat/backend/internal/service/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/economy"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/events"
	familysvc "github.com/zhouzirui/toddler-chat/backend/internal/service/family"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/imagegen"
	moodsvc "github.com/zhouzirui/toddler-chat/backend/internal/service/mood"
	"github.com/zhouzirui/toddler-chat/backend/internal/storage/kv"
)

// Voice plays synthesized speech and sound cues in the browser.
type Voice interface {
	Speak(sessionID, text string, pitch float64)
	PlayCue(sessionID string, cue speech.Cue)
}

// Deps lists the collaborators of the orchestrator. Text and Images may be
// nil: replies then fall back to the technical-error line and messages stay
// without pictures.
type Deps struct {
	Chat     *chatsvc.Service
	Personas persona.Store
	Text     ai.Generator
	Images   imagegen.Generator
	Voice    Voice
	Events   events.Publisher
	Store    kv.Store
	Filter   *profanity.Filter
	// NewRandom returns the random source of a new play session.
	NewRandom func() random.Source
	Ads       ads.Config
	// TextTimeout and ImageTimeout bound calls to the generative backends.
	TextTimeout  time.Duration
	ImageTimeout time.Duration
	// Sessions untouched for IdleTimeout are dropped from memory; their
	// persisted progress comes back on the next OpenSession.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Logger        *zap.Logger
}

// Service is the dialogue orchestrator and the registry of play sessions.
type Service struct {
	deps   Deps
	logger *zap.Logger

	// base outlives requests; background work hangs off it.
	base   context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup
	swept  chan struct{}

	mu       sync.Mutex
	sessions map[string]*playSession
}

func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Filter == nil {
		deps.Filter = profanity.New()
	}
	if deps.Store == nil {
		deps.Store = kv.NewMemoryStore()
	}
	if deps.NewRandom == nil {
		deps.NewRandom = random.NewTimeSeeded
	}
	if deps.TextTimeout <= 0 {
		deps.TextTimeout = time.Minute
	}
	if deps.ImageTimeout <= 0 {
		deps.ImageTimeout = 2 * time.Minute
	}
	if deps.IdleTimeout <= 0 {
		deps.IdleTimeout = 30 * time.Minute
	}
	if deps.SweepInterval <= 0 {
		deps.SweepInterval = time.Minute
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Service{
		deps:     deps,
		logger:   deps.Logger.Named("Dialogue"),
		base:     base,
		cancel:   cancel,
		swept:    make(chan struct{}),
		sessions: make(map[string]*playSession),
	}
	go s.sweep()
	return s
}

// Snapshot is the read model of a play session.
type Snapshot struct {
	Session  chat.Session     `json:"session"`
	Family   family.Family    `json:"family"`
	Child    *persona.Persona `json:"child,omitempty"`
	Mood     mood.Mood        `json:"mood"`
	Game     string           `json:"game,omitempty"`
	Voice    bool             `json:"voice"`
	InFlight bool             `json:"inFlight"`
	Economy  economy.State    `json:"economy"`
	Ad       ads.State        `json:"ad"`
}

// OpenSession opens play session id, restoring persisted progress, or
// returns the one already open. An empty id opens a fresh session.
func (s *Service) OpenSession(ctx context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	if ps, ok := s.sessions[id]; ok && id != "" {
		touch(ps)
		s.mu.Unlock()
		return s.snapshot(ps), nil
	}
	s.mu.Unlock()

	record, _, err := s.deps.Chat.CreateSession(ctx, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create session: %w", err)
	}

	s.mu.Lock()
	if ps, ok := s.sessions[record.ID]; ok {
		s.mu.Unlock()
		return s.snapshot(ps), nil
	}
	ps := s.newPlaySession(record.ID)
	touch(ps)
	s.sessions[record.ID] = ps
	s.mu.Unlock()

	if err := ps.ledger.Load(ctx); err != nil {
		s.logger.Warn("failed to restore progress", zap.String("session", ps.id), zap.Error(err))
	}
	ps.ads.StartPeriodic(s.base, ps.chatting)
	metrics.ActiveSessions.Inc()

	s.logger.Info("play session opened", zap.String("session", ps.id))
	return s.snapshot(ps), nil
}

func (s *Service) newPlaySession(id string) *playSession {
	rng := s.deps.NewRandom()
	ps := &playSession{
		id:     id,
		stage:  chat.StageSetupParent,
		voice:  true,
		ledger: economy.NewLedger(id, s.deps.Store, s.deps.Logger),
		mood:   moodsvc.NewMachine(rng),
		gen:    familysvc.NewGenerator(rng),
	}
	ps.fam = ps.gen.Randomize()

	ps.ledger.OnUnlock(func(m catalog.Milestone) {
		s.publish(id, events.TypeMilestone, m)
		s.cue(id, speech.CueDing)
	})

	ps.ads = ads.NewTimer(s.deps.Ads, rng, ads.Hooks{
		OnShow: func(st ads.State) { s.publish(id, events.TypeAd, st) },
		OnTick: func(st ads.State) { s.publish(id, events.TypeAd, st) },
		OnComplete: func(_ ads.Variant, reward int) {
			coins := ps.ledger.AddCoins(s.base, reward)
			s.publish(id, events.TypeAd, ps.ads.State())
			s.publish(id, events.TypeCoins, map[string]int{"coins": coins})
			s.cue(id, speech.CueDing)
		},
	}, s.deps.Logger)
	return ps
}

func (s *Service) get(id string) (*playSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	touch(ps)
	return ps, nil
}

// Snapshot returns the current state of play session id.
func (s *Service) Snapshot(id string) (Snapshot, error) {
	ps, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(ps), nil
}

func (s *Service) snapshot(ps *playSession) Snapshot {
	ps.mu.Lock()
	snap := Snapshot{
		Session:  ps.record(),
		Family:   ps.fam,
		Game:     ps.game,
		Voice:    ps.voice,
		InFlight: ps.inFlight,
	}
	if ps.child != nil {
		c := *ps.child
		snap.Child = &c
	}
	ps.mu.Unlock()

	snap.Mood = ps.mood.Current()
	snap.Economy = ps.ledger.Snapshot()
	snap.Ad = ps.ads.State()
	return snap
}

// SelectParent records the role the user plays and moves on to choosing
// a child.
func (s *Service) SelectParent(ctx context.Context, id string, role family.Role) (Snapshot, error) {
	if !role.Valid() {
		return Snapshot{}, fmt.Errorf("%q: %w", role, ErrInvalidRole)
	}
	ps, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	ps.mu.Lock()
	ps.parent = role
	if ps.stage == chat.StageSetupParent {
		ps.stage = chat.StageSetupChild
	}
	record := ps.record()
	ps.mu.Unlock()

	s.syncRecord(ctx, record)
	return s.snapshot(ps), nil
}

// StartConversation begins a fresh conversation with childID: happy mood,
// no game, zeroed ad turn counter, empty transcript and the scripted
// greeting.
func (s *Service) StartConversation(ctx context.Context, id, childID string) (chat.Message, error) {
	ps, err := s.get(id)
	if err != nil {
		return chat.Message{}, err
	}
	child, ok := s.deps.Personas.FindByID(childID)
	if !ok {
		return chat.Message{}, fmt.Errorf("%q: %w", childID, ErrUnknownChild)
	}
	if !persona.Selectable(child, ps.ledger.CanUnlockBoth()) {
		return chat.Message{}, fmt.Errorf("%s: %w", child.Name, ErrChildLocked)
	}

	ps.mu.Lock()
	if ps.parent == "" {
		ps.mu.Unlock()
		return chat.Message{}, ErrParentRequired
	}
	if ps.inFlight {
		ps.mu.Unlock()
		return chat.Message{}, ErrTurnInFlight
	}
	ps.child = &child
	ps.stage = chat.StageChat
	ps.game = ""
	voice := ps.voice
	fam := ps.fam
	record := ps.record()
	ps.mood.Reset()
	ps.ads.ResetTurns()
	ps.mu.Unlock()

	s.syncRecord(ctx, record)
	if err := s.deps.Chat.ClearTranscript(ctx, id); err != nil {
		return chat.Message{}, err
	}

	greeting, err := s.appendMessage(ctx, id, chat.Message{
		Role:     chat.RoleModel,
		Text:     child.Greeting,
		Activity: child.GreetingActivity,
	})
	if err != nil {
		return chat.Message{}, err
	}
	s.publish(id, events.TypeMood, map[string]mood.Mood{"mood": mood.Happy})

	if voice {
		s.speak(id, child, greeting.Text)
	}
	s.cue(id, speech.CueGiggle)
	s.generateImage(id, greeting.ID, imagegen.Request{
		Child:      child,
		Activity:   greetingImageAction,
		Mood:       string(mood.Happy),
		Appearance: familysvc.ToddlerAppearance(fam, child),
	})
	return greeting, nil
}

// Reset returns the household to parent selection with a new family.
// Coins, inventory and milestones are kept.
func (s *Service) Reset(ctx context.Context, id string) (Snapshot, error) {
	ps, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	ps.mu.Lock()
	if ps.inFlight {
		ps.mu.Unlock()
		return Snapshot{}, ErrTurnInFlight
	}
	ps.stage = chat.StageSetupParent
	ps.child = nil
	ps.game = ""
	ps.fam = ps.gen.Randomize()
	record := ps.record()
	ps.mood.Reset()
	ps.mu.Unlock()

	s.syncRecord(ctx, record)
	if err := s.deps.Chat.ClearTranscript(ctx, id); err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(ps), nil
}

// RandomizeFamily draws a new pair of parents.
func (s *Service) RandomizeFamily(id string) (family.Family, error) {
	ps, err := s.get(id)
	if err != nil {
		return family.Family{}, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.fam = ps.gen.Randomize()
	return ps.fam, nil
}

// Appearance describes what childID looks like with the current parents.
func (s *Service) Appearance(id, childID string) (string, error) {
	ps, err := s.get(id)
	if err != nil {
		return "", err
	}
	child, ok := s.deps.Personas.FindByID(childID)
	if !ok {
		return "", fmt.Errorf("%q: %w", childID, ErrUnknownChild)
	}
	ps.mu.Lock()
	fam := ps.fam
	ps.mu.Unlock()
	return familysvc.ToddlerAppearance(fam, child), nil
}

func (s *Service) SetVoice(id string, enabled bool) error {
	ps, err := s.get(id)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	ps.voice = enabled
	ps.mu.Unlock()
	return nil
}

func (s *Service) Milestones(id string) ([]catalog.Milestone, error) {
	ps, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return ps.ledger.Milestones(), nil
}

// Transcript returns the messages of the current conversation.
func (s *Service) Transcript(ctx context.Context, id string) ([]chat.Message, error) {
	if _, err := s.get(id); err != nil {
		return nil, err
	}
	return s.deps.Chat.LoadTranscript(ctx, id)
}

// WatchRewardedAd shows the long ad with the big reward.
func (s *Service) WatchRewardedAd(id string) (ads.State, error) {
	ps, err := s.get(id)
	if err != nil {
		return ads.State{}, err
	}
	if !ps.ads.Trigger(ads.Rewarded) {
		return ps.ads.State(), ErrAdShowing
	}
	return ps.ads.State(), nil
}

// Wait blocks until background image jobs have finished.
func (s *Service) Wait() {
	s.jobs.Wait()
}

// Close stops timers and background work of every session.
func (s *Service) Close() {
	s.cancel()
	<-s.swept

	s.mu.Lock()
	sessions := make([]*playSession, 0, len(s.sessions))
	for _, ps := range s.sessions {
		sessions = append(sessions, ps)
	}
	s.mu.Unlock()

	for _, ps := range sessions {
		ps.ads.Stop()
	}
	s.jobs.Wait()
}

// Sessions returns how many play sessions are held in memory.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) sweep() {
	defer close(s.swept)
	ticker := time.NewTicker(s.deps.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.base.Done():
			return
		case now := <-ticker.C:
			s.evictIdle(now.Add(-s.deps.IdleTimeout))
		}
	}
}

// evictIdle drops sessions untouched since cutoff along with their timers
// and transcripts.
func (s *Service) evictIdle(cutoff time.Time) {
	s.mu.Lock()
	var idle []*playSession
	for id, ps := range s.sessions {
		if !ps.idleSince(cutoff) {
			continue
		}
		idle = append(idle, ps)
		delete(s.sessions, id)
		// Under s.mu so a reopen of the same id cannot lose its fresh record.
		if err := s.deps.Chat.DeleteSession(s.base, id); err != nil {
			s.logger.Warn("failed to drop session record", zap.String("session", id), zap.Error(err))
		}
	}
	s.mu.Unlock()

	for _, ps := range idle {
		ps.ads.Stop()
		metrics.ActiveSessions.Dec()
		s.logger.Info("play session evicted", zap.String("session", ps.id))
	}
}

func (s *Service) syncRecord(ctx context.Context, record chat.Session) {
	if err := s.deps.Chat.UpdateSession(ctx, record); err != nil {
		s.logger.Warn("failed to update session record", zap.String("session", record.ID), zap.Error(err))
	}
}

func (s *Service) appendMessage(ctx context.Context, id string, msg chat.Message) (chat.Message, error) {
	saved, err := s.deps.Chat.SaveMessage(ctx, id, msg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("save message: %w", err)
	}
	s.publish(id, events.TypeMessage, saved)
	return saved, nil
}

func (s *Service) publish(id string, typ events.Type, data any) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(id, typ, data)
	}
}

func (s *Service) cue(id string, cue speech.Cue) {
	if s.deps.Voice != nil {
		s.deps.Voice.PlayCue(id, cue)
	}
}

func (s *Service) speak(id string, child persona.Persona, text string) {
	if s.deps.Voice != nil {
		s.deps.Voice.Speak(id, text, child.Pitch)
	}
}
