package dialogue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/mood"
	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/profanity"
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
	"github.com/zhouzirui/toddler-chat/backend/internal/service/imagegen"
	"github.com/zhouzirui/toddler-chat/backend/internal/storage/kv"
)

type fakeText struct {
	mu        sync.Mutex
	requests  []ai.ChildRequest
	responses []ai.ChildResponse
	err       error
	started   chan struct{}
	gate      chan struct{}
}

func (f *fakeText) GenerateChildResponse(ctx context.Context, req ai.ChildRequest) (ai.ChildResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var resp ai.ChildResponse
	if len(f.responses) > 0 {
		resp = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	started, gate, err := f.started, f.gate, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return resp, err
}

func (f *fakeText) calls() []ai.ChildRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.ChildRequest(nil), f.requests...)
}

type fakeImages struct {
	mu       sync.Mutex
	requests []imagegen.Request
	err      error
	// slow blocks requests with this activity until release is closed.
	slow    string
	release chan struct{}
}

func (f *fakeImages) GenerateToddlerImage(ctx context.Context, req imagegen.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	err, slow, release := f.err, f.slow, f.release
	f.mu.Unlock()

	if slow != "" && req.Activity == slow {
		<-release
	}
	if err != nil {
		return "", err
	}
	return "img:" + req.Activity, nil
}

func (f *fakeImages) calls() []imagegen.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]imagegen.Request(nil), f.requests...)
}

type recordingVoice struct {
	mu      sync.Mutex
	spoken  []string
	pitches []float64
	cues    []speech.Cue
}

func (v *recordingVoice) Speak(_ string, text string, pitch float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spoken = append(v.spoken, text)
	v.pitches = append(v.pitches, pitch)
}

func (v *recordingVoice) PlayCue(_ string, cue speech.Cue) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cues = append(v.cues, cue)
}

func (v *recordingVoice) heard() ([]string, []float64, []speech.Cue) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.spoken...), append([]float64(nil), v.pitches...), append([]speech.Cue(nil), v.cues...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(sessionID string, typ events.Type, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events.Event{Type: typ, SessionID: sessionID, Data: data})
}

func (r *recordingEvents) ofType(typ events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	svc    *Service
	text   *fakeText
	images *fakeImages
	voice  *recordingVoice
	events *recordingEvents
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		text:   &fakeText{responses: []ai.ChildResponse{{Text: "Yay!", ActivityDescription: "clapping", Emotion: "calm"}}},
		images: &fakeImages{},
		voice:  &recordingVoice{},
		events: &recordingEvents{},
	}
	deps := Deps{
		Chat:      chatsvc.NewService(),
		Personas:  persona.NewMemoryStore(persona.Seed()),
		Text:      h.text,
		Images:    h.images,
		Voice:     h.voice,
		Events:    h.events,
		NewRandom: func() random.Source { return &random.Scripted{} },
		Ads:       ads.Config{Tick: time.Hour, Interval: time.Hour},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = NewService(deps)
	t.Cleanup(h.svc.Close)
	return h
}

// chatWith opens a session, picks Momma and starts talking to childID.
func (h *harness) chatWith(t *testing.T, childID string) string {
	t.Helper()
	ctx := context.Background()
	snap, err := h.svc.OpenSession(ctx, "")
	require.NoError(t, err)
	id := snap.Session.ID
	_, err = h.svc.SelectParent(ctx, id, family.Momma)
	require.NoError(t, err)
	_, err = h.svc.StartConversation(ctx, id, childID)
	require.NoError(t, err)
	return id
}

func (h *harness) transcript(t *testing.T, id string) []chat.Message {
	t.Helper()
	msgs, err := h.svc.Transcript(context.Background(), id)
	require.NoError(t, err)
	return msgs
}

func unlocked(ms []catalog.Milestone, id string) bool {
	for _, m := range ms {
		if m.ID == id {
			return m.Unlocked
		}
	}
	return false
}

func TestOpenSessionDefaults(t *testing.T) {
	h := newHarness(t)
	snap, err := h.svc.OpenSession(context.Background(), "household-1")
	require.NoError(t, err)

	assert.Equal(t, "household-1", snap.Session.ID)
	assert.Equal(t, chat.StageSetupParent, snap.Session.Stage)
	assert.Equal(t, economy.StartingCoins, snap.Economy.Coins)
	assert.Equal(t, mood.Happy, snap.Mood)
	assert.True(t, snap.Voice)
	assert.Nil(t, snap.Child)

	again, err := h.svc.OpenSession(context.Background(), "household-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Family, again.Family)
}

func TestStartConversationRequiresParent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.svc.OpenSession(ctx, "")
	require.NoError(t, err)

	_, err = h.svc.StartConversation(ctx, snap.Session.ID, persona.BillyID)
	assert.ErrorIs(t, err, ErrParentRequired)

	_, err = h.svc.SelectParent(ctx, snap.Session.ID, family.Role("Uncle"))
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = h.svc.SelectParent(ctx, snap.Session.ID, family.Dada)
	require.NoError(t, err)
	_, err = h.svc.StartConversation(ctx, snap.Session.ID, "Timmy")
	assert.ErrorIs(t, err, ErrUnknownChild)
}

func TestStartConversationGreets(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)
	h.svc.Wait()

	msgs := h.transcript(t, id)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleModel, msgs[0].Role)
	assert.Equal(t, "Hewo! Pway twuck?", msgs[0].Text)
	assert.Equal(t, "Standing and waving", msgs[0].Activity)
	assert.Equal(t, "img:"+greetingImageAction, msgs[0].Image)

	spoken, pitches, cues := h.voice.heard()
	assert.Equal(t, []string{"Hewo! Pway twuck?"}, spoken)
	assert.Equal(t, []float64{1.3}, pitches)
	assert.Contains(t, cues, speech.CueGiggle)

	snap, err := h.svc.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, chat.StageChat, snap.Session.Stage)
	assert.Equal(t, persona.BillyID, snap.Session.ChildID)
}

func TestEmptyMessageIgnored(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.SarahID)

	_, err := h.svc.SendMessage(context.Background(), id, "   ", "")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.True(t, Ignored(err))
	assert.Empty(t, h.text.calls())
}

func TestMessageBeforeConversation(t *testing.T) {
	h := newHarness(t)
	snap, err := h.svc.OpenSession(context.Background(), "")
	require.NoError(t, err)

	_, err = h.svc.SendMessage(context.Background(), snap.Session.ID, "hi", "")
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestProfanityNeverReachesGenerator(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.SarahID)

	res, err := h.svc.SendMessage(context.Background(), id, "you are STUPID", "")
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, StatusFiltered, res.Status)
	assert.Empty(t, h.text.calls())

	msgs := h.transcript(t, id)
	require.Len(t, msgs, 3)
	assert.Equal(t, profanity.FilteredPlaceholder, msgs[1].Text)
	assert.Equal(t, chat.RoleUser, msgs[1].Role)
	assert.Equal(t, "No say bad words! 🥺", msgs[2].Text)
	assert.Equal(t, "covering ears looking sad", msgs[2].Activity)
	assert.Equal(t, "img:covering ears sad", msgs[2].Image)

	snap, err := h.svc.Snapshot(id)
	require.NoError(t, err)
	assert.Zero(t, snap.Economy.MessageCount)
	assert.Zero(t, snap.Ad.Turns)
}

func TestTurnCompletes(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)

	res, err := h.svc.SendMessage(context.Background(), id, "want truck?", "")
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, StatusCompleted, res.Status)
	require.NotNil(t, res.Reply)
	assert.Equal(t, "Yay!", res.Reply.Text)

	calls := h.text.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "want truck?", calls[0].Message)
	assert.Equal(t, family.Momma, calls[0].ParentRole)
	assert.Equal(t, persona.BillyID, calls[0].Child.ID)
	assert.Equal(t, mood.Happy, calls[0].Mood)
	require.Len(t, calls[0].History, 1, "greeting only, current message excluded")

	msgs := h.transcript(t, id)
	require.Len(t, msgs, 3)
	assert.Equal(t, "img:clapping", msgs[2].Image)

	spoken, _, _ := h.voice.heard()
	assert.Equal(t, "Yay!", spoken[len(spoken)-1])
}

func TestHistoryGrowsWithTranscript(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)
	ctx := context.Background()

	_, err := h.svc.SendMessage(ctx, id, "one", "")
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, id, "two", "")
	require.NoError(t, err)

	calls := h.text.calls()
	require.Len(t, calls, 2)
	history := calls[1].History
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[1].Text)
	assert.Equal(t, chat.RoleUser, history[1].Role)
	assert.Equal(t, "two", calls[1].Message)
}

func TestGenerationFailureUsesFallback(t *testing.T) {
	h := newHarness(t)
	h.text.err = errors.New("quota")
	id := h.chatWith(t, persona.BillyID)

	res, err := h.svc.SendMessage(context.Background(), id, "hi", "")
	require.NoError(t, err)

	fallback := ai.FallbackResponse()
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, fallback.Text, res.Reply.Text)
	assert.Equal(t, fallback.ActivityDescription, res.Reply.Activity)
}

func TestTenthTurnShowsAd(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)
	ctx := context.Background()

	for i := 0; i < ads.DefaultTurnThreshold-1; i++ {
		res, err := h.svc.SendMessage(ctx, id, "more", "")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, res.Status)
	}

	res, err := h.svc.SendMessage(ctx, id, "more", "")
	require.NoError(t, err)
	assert.Equal(t, StatusAd, res.Status)
	require.NotNil(t, res.Ad)
	assert.True(t, res.Ad.Visible)
	assert.Equal(t, ads.Random, res.Ad.Variant)
	assert.Len(t, h.text.calls(), ads.DefaultTurnThreshold-1)
	assert.Len(t, h.transcript(t, id), 1+2*(ads.DefaultTurnThreshold-1))

	_, err = h.svc.SendMessage(ctx, id, "are you there", "")
	assert.ErrorIs(t, err, ErrAdShowing)
}

func TestBothUnlocksAtTenMessages(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Ads.TurnThreshold = 100 })
	ctx := context.Background()
	id := h.chatWith(t, persona.BillyID)

	_, err := h.svc.StartConversation(ctx, id, persona.BothID)
	require.ErrorIs(t, err, ErrChildLocked)

	for i := 0; i < economy.UnlockThreshold-1; i++ {
		_, err := h.svc.SendMessage(ctx, id, "again", "")
		require.NoError(t, err)
	}
	snap, err := h.svc.Snapshot(id)
	require.NoError(t, err)
	assert.False(t, snap.Economy.CanUnlockBoth)

	_, err = h.svc.SendMessage(ctx, id, "again", "")
	require.NoError(t, err)

	ms, err := h.svc.Milestones(id)
	require.NoError(t, err)
	assert.True(t, unlocked(ms, catalog.MilestoneBestFriends))
	assert.True(t, unlocked(ms, catalog.MilestoneFirstWord))

	greeting, err := h.svc.StartConversation(ctx, id, persona.BothID)
	require.NoError(t, err)
	assert.Equal(t, "Hewo! We pway!", greeting.Text)
	assert.Len(t, h.transcript(t, id), 1, "new conversation starts a fresh transcript")
}

func TestTantrumUnlocksMilestone(t *testing.T) {
	h := newHarness(t)
	h.text.responses = []ai.ChildResponse{{Text: "NOOO", ActivityDescription: "kicking floor", Emotion: "very tantrum"}}
	id := h.chatWith(t, persona.SarahID)

	res, err := h.svc.SendMessage(context.Background(), id, "bedtime", "")
	require.NoError(t, err)

	assert.Equal(t, mood.Tantrum, res.Mood)
	ms, err := h.svc.Milestones(id)
	require.NoError(t, err)
	assert.True(t, unlocked(ms, catalog.MilestoneTantrumTamer))

	_, _, cues := h.voice.heard()
	assert.Contains(t, cues, speech.CueCry)
	assert.Contains(t, cues, speech.CueDing)
}

func TestRecoveryAwardsCoins(t *testing.T) {
	// Draws: family coin flip, then the pre-reply mood roll lands on grumpy.
	h := newHarness(t, func(d *Deps) {
		d.NewRandom = func() random.Source { return &random.Scripted{Floats: []float64{0.99, 0.10, 0.99}} }
	})
	h.text.responses = []ai.ChildResponse{{Text: "Hehe", ActivityDescription: "playing with ball", Emotion: "excited"}}
	id := h.chatWith(t, persona.BillyID)

	res, err := h.svc.SendMessage(context.Background(), id, "tickle", "")
	require.NoError(t, err)

	assert.Equal(t, mood.Grumpy, h.text.calls()[0].Mood)
	assert.Equal(t, mood.Happy, res.Mood)
	assert.Equal(t, economy.StartingCoins+5, res.Coins)

	_, _, cues := h.voice.heard()
	assert.Contains(t, cues, speech.CuePlay)
}

func TestImageFailureLeavesMessageImageless(t *testing.T) {
	h := newHarness(t)
	h.images.err = errors.New("safety filter")
	id := h.chatWith(t, persona.BillyID)

	res, err := h.svc.SendMessage(context.Background(), id, "draw", "")
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, StatusCompleted, res.Status)
	for _, m := range h.transcript(t, id) {
		assert.Empty(t, m.Image)
	}
}

func TestLateImagePatchesItsOwnMessage(t *testing.T) {
	h := newHarness(t)
	h.images.slow = "first"
	h.images.release = make(chan struct{})
	h.text.responses = []ai.ChildResponse{
		{Text: "A", ActivityDescription: "first", Emotion: "calm"},
		{Text: "B", ActivityDescription: "second", Emotion: "calm"},
	}
	id := h.chatWith(t, persona.BillyID)
	ctx := context.Background()

	first, err := h.svc.SendMessage(ctx, id, "one", "")
	require.NoError(t, err)
	second, err := h.svc.SendMessage(ctx, id, "two", "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		msgs, err := h.svc.Transcript(ctx, id)
		if err != nil {
			return false
		}
		for _, m := range msgs {
			if m.ID == second.Reply.ID {
				return m.Image != ""
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	close(h.images.release)
	h.svc.Wait()

	byID := map[int64]chat.Message{}
	for _, m := range h.transcript(t, id) {
		byID[m.ID] = m
	}
	assert.Equal(t, "img:first", byID[first.Reply.ID].Image)
	assert.Equal(t, "img:second", byID[second.Reply.ID].Image)
	assert.Empty(t, byID[first.UserMessage.ID].Image)
}

func TestConcurrentTurnRejected(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)
	h.text.started = make(chan struct{}, 1)
	h.text.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.SendMessage(context.Background(), id, "first", "")
		done <- err
	}()
	<-h.text.started

	_, err := h.svc.SendMessage(context.Background(), id, "second", "")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	_, err = h.svc.Reset(context.Background(), id)
	assert.ErrorIs(t, err, ErrTurnInFlight)

	snap, err := h.svc.Snapshot(id)
	require.NoError(t, err)
	assert.True(t, snap.InFlight)

	close(h.text.gate)
	require.NoError(t, <-done)

	snap, err = h.svc.Snapshot(id)
	require.NoError(t, err)
	assert.False(t, snap.InFlight)
	assert.Len(t, h.text.calls(), 1)
}

func TestToddlerSaysUnlocksGamer(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.SarahID)

	_, err := h.svc.SendMessage(context.Background(), id, "Toddler Says touch your nose", "")
	require.NoError(t, err)

	ms, err := h.svc.Milestones(id)
	require.NoError(t, err)
	assert.True(t, unlocked(ms, catalog.MilestoneGamer))
}

func TestStartGame(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)
	ctx := context.Background()

	_, err := h.svc.StartGame(ctx, id, "Chess")
	require.ErrorIs(t, err, ErrUnknownGame)

	res, err := h.svc.StartGame(ctx, id, "Colors")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	calls := h.text.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Colors", calls[0].Game)
	assert.Equal(t, "[System: Child reacts to Colors game]", calls[0].Message)

	msgs := h.transcript(t, id)
	require.Len(t, msgs, 4)
	assert.Equal(t, "[GAME START: Colors] Let's learn colors! What color is the Apple?", msgs[1].Text)

	ms, err := h.svc.Milestones(id)
	require.NoError(t, err)
	assert.True(t, unlocked(ms, catalog.MilestoneSmartypants))
}

func TestBuyFoodRunsGiftTurn(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.SarahID)

	res, err := h.svc.Buy(context.Background(), id, "apple")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	calls := h.text.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "*gives Apple* I have a Apple for you!", calls[0].Message)

	snap, err := h.svc.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, economy.StartingCoins-5, snap.Economy.Coins)
	assert.Empty(t, snap.Economy.Inventory)

	_, _, cues := h.voice.heard()
	assert.Contains(t, cues, speech.CuePop)
}

func TestBuyToyShowsUpInImages(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)

	_, err := h.svc.Buy(context.Background(), id, "drum")
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, "*gives new Drum* Look at your new Drum!", h.text.calls()[0].Message)
	var gift *imagegen.Request
	for _, req := range h.images.calls() {
		if req.Activity == "clapping" {
			gift = &req
		}
	}
	require.NotNil(t, gift, "gift reply was never drawn")
	assert.Contains(t, gift.Extras, "playing with Drum")

	ms, err := h.svc.Milestones(id)
	require.NoError(t, err)
	assert.True(t, unlocked(ms, catalog.MilestoneMusician))
}

func TestBuyInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)

	_, err := h.svc.Buy(context.Background(), id, "costume")
	require.ErrorIs(t, err, economy.ErrInsufficientFunds)
	assert.Empty(t, h.text.calls())

	notices := h.events.ofType(events.TypeNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, map[string]string{"message": economy.InsufficientFundsNotice}, notices[0].Data)

	snap, err := h.svc.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, economy.StartingCoins, snap.Economy.Coins)
	assert.False(t, snap.InFlight)

	_, err = h.svc.Buy(context.Background(), id, "spaceship")
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestRewardedAdRejectedWhileShowing(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)

	st, err := h.svc.WatchRewardedAd(id)
	require.NoError(t, err)
	assert.True(t, st.Visible)
	assert.Equal(t, ads.Rewarded, st.Variant)

	_, err = h.svc.WatchRewardedAd(id)
	assert.ErrorIs(t, err, ErrAdShowing)
}

func TestRewardedAdCreditsCoins(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Ads.Tick = time.Millisecond })
	id := h.chatWith(t, persona.BillyID)

	_, err := h.svc.WatchRewardedAd(id)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		snap, err := h.svc.Snapshot(id)
		return err == nil && !snap.Ad.Visible && snap.Economy.Coins == economy.StartingCoins+15
	}, time.Second, 5*time.Millisecond)
}

func TestResetKeepsProgress(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)
	ctx := context.Background()

	_, err := h.svc.Buy(ctx, id, "teddy")
	require.NoError(t, err)

	snap, err := h.svc.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, chat.StageSetupParent, snap.Session.Stage)
	assert.Nil(t, snap.Child)
	assert.Empty(t, snap.Game)
	assert.Equal(t, mood.Happy, snap.Mood)
	assert.Equal(t, economy.StartingCoins-25, snap.Economy.Coins)
	assert.Contains(t, snap.Economy.Inventory, "teddy")
	assert.Empty(t, h.transcript(t, id))
}

func TestVoiceToggle(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.SarahID)
	require.NoError(t, h.svc.SetVoice(id, false))

	_, err := h.svc.SendMessage(context.Background(), id, "sing", "")
	require.NoError(t, err)

	spoken, pitches, _ := h.voice.heard()
	assert.Equal(t, []string{"Hewo! Want juju?"}, spoken)
	assert.Equal(t, []float64{1.5}, pitches)
}

func TestAppearanceUsesFamily(t *testing.T) {
	h := newHarness(t)
	id := h.chatWith(t, persona.BillyID)

	desc, err := h.svc.Appearance(id, persona.BillyID)
	require.NoError(t, err)
	assert.NotEmpty(t, desc)

	_, err = h.svc.Appearance(id, "nobody")
	assert.ErrorIs(t, err, ErrUnknownChild)
	_, err = h.svc.Appearance("missing", persona.BillyID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTurnPersistsAfterCallerHangsUp(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := kv.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	store := kv.NewRedisStore(client, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	// Draws: family coin flip, then the pre-reply mood roll lands on grumpy.
	h := newHarness(t, func(d *Deps) {
		d.Store = store
		d.NewRandom = func() random.Source { return &random.Scripted{Floats: []float64{0.99, 0.10, 0.99}} }
	})
	h.text.responses = []ai.ChildResponse{{Text: "Hehe", ActivityDescription: "giggling", Emotion: "happy"}}
	id := h.chatWith(t, persona.BillyID)
	h.text.started = make(chan struct{}, 1)
	h.text.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.svc.SendMessage(ctx, id, "tickle", "")
		done <- err
	}()
	<-h.text.started
	cancel()
	close(h.text.gate)
	require.NoError(t, <-done)

	snap, err := h.svc.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, economy.StartingCoins+5, snap.Economy.Coins)

	coins, err := mr.Get("toddler:" + id + ":coins")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(economy.StartingCoins+5), coins)
	count, err := mr.Get("toddler:" + id + ":msg_count")
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func quickEviction(d *Deps) {
	d.IdleTimeout = 20 * time.Millisecond
	d.SweepInterval = 5 * time.Millisecond
}

func TestIdleSessionIsEvictedAndRestored(t *testing.T) {
	h := newHarness(t, quickEviction)
	ctx := context.Background()
	id := h.chatWith(t, persona.BillyID)
	_, err := h.svc.Buy(ctx, id, "drum")
	require.NoError(t, err)
	h.svc.Wait()

	assert.Eventually(t, func() bool { return h.svc.Sessions() == 0 }, time.Second, 5*time.Millisecond)
	_, err = h.svc.Snapshot(id)
	require.ErrorIs(t, err, ErrSessionNotFound)

	snap, err := h.svc.OpenSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, chat.StageSetupParent, snap.Session.Stage)
	assert.Equal(t, economy.StartingCoins-45, snap.Economy.Coins)
	assert.Contains(t, snap.Economy.Inventory, "drum")
}

func TestSessionWithTurnInFlightIsKept(t *testing.T) {
	h := newHarness(t, quickEviction)
	id := h.chatWith(t, persona.SarahID)
	h.text.started = make(chan struct{}, 1)
	h.text.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.SendMessage(context.Background(), id, "story", "")
		done <- err
	}()
	<-h.text.started
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, h.svc.Sessions())

	close(h.text.gate)
	require.NoError(t, <-done)
}
