package speech

import "io"

// DefaultRate is the slowed-down speaking rate used for every child voice.
const DefaultRate = 0.9

// ASRRequest asks for a single utterance to be recognised.
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // webm, wav, mp3, ...
	Language  string    `json:"language"` // en, en-US, ...
}

// TTSRequest is a fire-and-forget synthesis request executed by the client.
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Pitch     float64 `json:"pitch"`
	Rate      float64 `json:"rate"`
}

// Cue is one of the fixed sound effects the client knows how to play.
type Cue string

const (
	CuePop    Cue = "pop"
	CueDing   Cue = "ding"
	CueGiggle Cue = "giggle"
	CueCry    Cue = "cry"
	CuePlay   Cue = "play"
)
