package dialogue

import (
	"sync"
	"time"

	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/family"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/ads"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/economy"
	familysvc "github.com/zhouzirui/toddler-chat/backend/internal/service/family"
	moodsvc "github.com/zhouzirui/toddler-chat/backend/internal/service/mood"
)

// playSession is one household. mu guards the setup fields and the turn
// token; collaborators carry their own locks.
type playSession struct {
	id string

	mu       sync.Mutex
	fam      family.Family
	parent   family.Role
	child    *persona.Persona
	stage    chat.Stage
	game     string
	voice    bool
	inFlight bool
	// lastActive is refreshed by every operation; idle sessions are evicted.
	lastActive time.Time

	ledger *economy.Ledger
	mood   *moodsvc.Machine
	ads    *ads.Timer
	gen    *familysvc.Generator
}

// acquire takes the single-flight turn token. The returned release is
// safe to call more than once.
func (ps *playSession) acquire() (release func(), child persona.Persona, err error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.child == nil {
		return nil, persona.Persona{}, ErrNoConversation
	}
	if ps.inFlight {
		return nil, persona.Persona{}, ErrTurnInFlight
	}
	if ps.ads.Visible() {
		return nil, persona.Persona{}, ErrAdShowing
	}
	ps.inFlight = true

	var once sync.Once
	release = func() {
		once.Do(func() {
			ps.mu.Lock()
			ps.inFlight = false
			ps.mu.Unlock()
		})
	}
	return release, *ps.child, nil
}

func (ps *playSession) chatting() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.stage == chat.StageChat
}

func (ps *playSession) record() chat.Session {
	s := chat.Session{ID: ps.id, ParentRole: string(ps.parent), Stage: ps.stage}
	if ps.child != nil {
		s.ChildID = ps.child.ID
	}
	return s
}

func touch(ps *playSession) {
	ps.mu.Lock()
	ps.lastActive = time.Now()
	ps.mu.Unlock()
}

// idleSince reports whether ps has been untouched since cutoff and holds no
// turn.
func (ps *playSession) idleSince(cutoff time.Time) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return !ps.inFlight && ps.lastActive.Before(cutoff)
}
