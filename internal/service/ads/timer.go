package ads

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/metrics"
	"github.com/zhouzirui/toddler-chat/backend/internal/random"
)

// Variant selects countdown length and reward range of an ad.
type Variant string

const (
	Random   Variant = "random"
	Rewarded Variant = "rewarded"
)

type variantRule struct {
	seconds   int
	minReward int
	maxReward int
}

var variants = map[Variant]variantRule{
	Random:   {seconds: 5, minReward: 1, maxReward: 2},
	Rewarded: {seconds: 15, minReward: 15, maxReward: 20},
}

const (
	DefaultTurnThreshold = 10
	DefaultInterval      = 5 * time.Minute
	DefaultTick          = time.Second
)

// State is what the frontend needs to render the ad overlay.
type State struct {
	Visible   bool    `json:"visible"`
	Variant   Variant `json:"variant,omitempty"`
	Remaining int     `json:"remaining"`
	Reward    int     `json:"reward"`
	Turns     int     `json:"turns"`
}

// Hooks are invoked outside the timer lock.
type Hooks struct {
	OnShow     func(State)
	OnTick     func(State)
	OnComplete func(v Variant, reward int)
}

type Config struct {
	Tick          time.Duration
	Interval      time.Duration
	TurnThreshold int
}

// Timer runs the ad overlay of one household: the turn counter, the
// periodic trigger and the per-second countdown.
type Timer struct {
	mu       sync.Mutex
	rng      random.Source
	hooks    Hooks
	logger   *zap.Logger
	tick     time.Duration
	interval time.Duration
	limit    int

	state State

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewTimer(cfg Config, rng random.Source, hooks Hooks, logger *zap.Logger) *Timer {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TurnThreshold <= 0 {
		cfg.TurnThreshold = DefaultTurnThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timer{
		rng:      rng,
		hooks:    hooks,
		logger:   logger.Named("Ads"),
		tick:     cfg.Tick,
		interval: cfg.Interval,
		limit:    cfg.TurnThreshold,
		stop:     make(chan struct{}),
	}
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Visible
}

// ResetTurns zeroes the turn counter.
func (t *Timer) ResetTurns() {
	t.mu.Lock()
	t.state.Turns = 0
	t.mu.Unlock()
}

// CountTurn counts one turn. When the threshold is reached the counter is
// reset, a random ad is shown and CountTurn reports true.
func (t *Timer) CountTurn() bool {
	t.mu.Lock()
	t.state.Turns++
	hit := t.state.Turns >= t.limit
	if hit {
		t.state.Turns = 0
	}
	t.mu.Unlock()

	if hit {
		t.Trigger(Random)
	}
	return hit
}

// Trigger shows an ad of variant v and starts its countdown. It is a no-op
// while another ad is visible.
func (t *Timer) Trigger(v Variant) bool {
	vs, ok := variants[v]
	if !ok {
		return false
	}

	t.mu.Lock()
	if t.state.Visible {
		t.mu.Unlock()
		return false
	}
	select {
	case <-t.stop:
		t.mu.Unlock()
		return false
	default:
	}
	t.state.Visible = true
	t.state.Variant = v
	t.state.Remaining = vs.seconds
	t.state.Reward = vs.minReward + t.rng.IntN(vs.maxReward-vs.minReward+1)
	shown := t.state
	t.wg.Add(1)
	t.mu.Unlock()

	metrics.AdsShownTotal.WithLabelValues(string(v)).Inc()
	t.logger.Debug("ad shown", zap.String("variant", string(v)), zap.Int("reward", shown.Reward))
	if t.hooks.OnShow != nil {
		t.hooks.OnShow(shown)
	}

	go t.countdown()
	return true
}

func (t *Timer) countdown() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		t.state.Remaining--
		snap := t.state
		done := snap.Remaining <= 0
		if done {
			t.state.Visible = false
			t.state.Remaining = 0
			if snap.Variant == Random {
				t.state.Turns = 0
			}
		}
		t.mu.Unlock()

		if !done {
			if t.hooks.OnTick != nil {
				t.hooks.OnTick(snap)
			}
			continue
		}
		if t.hooks.OnComplete != nil {
			t.hooks.OnComplete(snap.Variant, snap.Reward)
		}
		return
	}
}

// StartPeriodic shows a random ad every interval while active reports true
// and no ad is visible. It returns when ctx is done or the timer is stopped.
func (t *Timer) StartPeriodic(ctx context.Context, active func() bool) {
	t.mu.Lock()
	select {
	case <-t.stop:
		t.mu.Unlock()
		return
	default:
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticker.C:
				if active == nil || active() {
					t.Trigger(Random)
				}
			}
		}
	}()
}

// Stop ends the periodic trigger and any running countdown.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopOnce.Do(func() { close(t.stop) })
	t.mu.Unlock()
	t.wg.Wait()
}
