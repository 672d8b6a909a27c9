package chat

import "time"

// Stage tracks where a play session is in the setup flow.
type Stage string

const (
	StageSetupParent Stage = "setup-parent"
	StageSetupChild  Stage = "setup-child"
	StageChat        Stage = "chat"
)

// Session captures the identity of a play session and its current setup.
type Session struct {
	ID         string    `json:"id"`
	ParentRole string    `json:"parentRole"`
	ChildID    string    `json:"childId,omitempty"`
	Stage      Stage     `json:"stage"`
	CreatedAt  time.Time `json:"createdAt"`
}
