// Package events fans out play-session events to connected browsers.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type names the kind of an Event.
type Type string

const (
	TypeMessage   Type = "message"
	TypeImage     Type = "image"
	TypeMood      Type = "mood"
	TypeCoins     Type = "coins"
	TypeMilestone Type = "milestone"
	TypeAd        Type = "ad"
	TypeSpeech    Type = "speech"
	TypeCue       Type = "cue"
	TypeNotice    Type = "notice"
)

// Event is the envelope written to SSE and websocket clients.
type Event struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

const subscriberBuffer = 64

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(sessionID string, typ Type, data any)
}

// Hub keeps subscribers per session. Publishing never blocks; a subscriber
// that falls behind loses events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	logger *zap.Logger
}

var _ Publisher = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger.Named("Events"),
	}
}

// Subscribe registers a listener for sessionID. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Publish(sessionID string, typ Type, data any) {
	evt := Event{Type: typ, SessionID: sessionID, Data: data, Timestamp: time.Now().Unix()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("session", sessionID), zap.String("type", string(typ)))
		}
	}
}

// Subscribers reports how many listeners sessionID has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
