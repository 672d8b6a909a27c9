package chat

import "time"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is a single transcript entry. ID is assigned on append and is the
// only handle used to patch the image later.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Image     string    `json:"image,omitempty"`
	Activity  string    `json:"activity,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
