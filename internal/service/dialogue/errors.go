package dialogue

import "errors"

var (
	ErrSessionNotFound = errors.New("play session not found")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrTurnInFlight    = errors.New("a reply is already being generated")
	ErrAdShowing       = errors.New("an ad is showing")
	ErrNoConversation  = errors.New("no child selected")
	ErrParentRequired  = errors.New("select a parent role first")
	ErrChildLocked     = errors.New("child is locked")
	ErrUnknownChild    = errors.New("unknown child")
	ErrUnknownGame     = errors.New("unknown game")
	ErrUnknownItem     = errors.New("unknown store item")
	ErrInvalidRole     = errors.New("invalid parent role")
)

// Ignored reports whether err is a turn rejection that leaves every piece
// of state untouched.
func Ignored(err error) bool {
	return errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrTurnInFlight) || errors.Is(err, ErrAdShowing)
}
