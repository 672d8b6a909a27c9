package mood

import (
	"sync"

	"github.com/zhouzirui/toddler-chat/backend/internal/analysis/mood"
	"github.com/zhouzirui/toddler-chat/backend/internal/random"
)

const (
	// RecoveryBonus is paid when the child becomes happy again.
	RecoveryBonus = 5
	// StayHappyBonus is paid when a draw above stayHappyThreshold lands
	// while the child stays happy.
	StayHappyBonus     = 1
	stayHappyThreshold = 0.7
)

// Outcome describes what one emotion label did to the machine.
type Outcome struct {
	Previous mood.Mood
	Current  mood.Mood
	// Matched is false when the label did not classify and the mood stayed.
	Matched bool
	Bonus   int
}

// BecameHappy reports whether the label classified as happy.
func (o Outcome) BecameHappy() bool { return o.Matched && o.Current == mood.Happy }

// EnteredTantrum reports whether the label classified as a tantrum.
func (o Outcome) EnteredTantrum() bool { return o.Matched && o.Current == mood.Tantrum }

// Machine tracks the mood of the active child.
type Machine struct {
	mu      sync.Mutex
	current mood.Mood
	rng     random.Source
}

func NewMachine(rng random.Source) *Machine {
	return &Machine{current: mood.Happy, rng: rng}
}

func (m *Machine) Current() mood.Mood {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Reset puts the child back into a happy mood.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.current = mood.Happy
	m.mu.Unlock()
}

// Roll applies the random swing that precedes every generated reply.
func (m *Machine) Roll() mood.Mood {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == mood.Happy {
		m.current = mood.Roll(m.current, m.rng.Float64())
	}
	return m.current
}

// ApplyEmotion reclassifies the mood from the generator's emotion label and
// computes the coin bonus it earns.
func (m *Machine) ApplyEmotion(emotion string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Outcome{Previous: m.current, Current: m.current}
	next, ok := mood.Classify(emotion)
	if !ok {
		return out
	}
	out.Matched = true
	if next == mood.Happy {
		if m.current != mood.Happy {
			out.Bonus = RecoveryBonus
		} else if m.rng.Float64() > stayHappyThreshold {
			out.Bonus = StayHappyBonus
		}
	}
	m.current = next
	out.Current = next
	return out
}
