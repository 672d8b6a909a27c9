// Package random provides the injectable random source shared by the
// family generator, the mood machine and the ad timer.
package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is the subset of *rand.Rand the services draw from.
type Source interface {
	IntN(n int) int
	Float64() float64
}

type locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a goroutine-safe source seeded with seed.
func New(seed uint64) Source {
	return &locked{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeeded returns a goroutine-safe source seeded from the clock.
func NewTimeSeeded() Source {
	return New(uint64(time.Now().UnixNano()))
}

func (l *locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.IntN(n)
}

func (l *locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

// Scripted replays fixed draws in order and then repeats the last one.
// It lets tests pin every random decision.
type Scripted struct {
	mu     sync.Mutex
	Ints   []int
	Floats []float64
}

func (s *Scripted) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := 0
	if len(s.Ints) > 0 {
		v = s.Ints[0]
		if len(s.Ints) > 1 {
			s.Ints = s.Ints[1:]
		}
	}
	if v >= n {
		v = n - 1
	}
	return v
}

func (s *Scripted) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	// 0.99 keeps every probabilistic branch on its "nothing happens" side.
	v := 0.99
	if len(s.Floats) > 0 {
		v = s.Floats[0]
		if len(s.Floats) > 1 {
			s.Floats = s.Floats[1:]
		}
	}
	return v
}
