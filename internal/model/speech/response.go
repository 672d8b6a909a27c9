package speech

import "time"

// ASRResponse carries the recognised text of one utterance.
type ASRResponse struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Language  string    `json:"language,omitempty"`
	Duration  float64   `json:"duration,omitempty"` // seconds of audio
	CreatedAt time.Time `json:"createdAt"`
}
