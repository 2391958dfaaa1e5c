package interview

import "time"

// Status enumerates the session lifecycle states.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session captures one expert interview from greeting to sign-off.
type Session struct {
	ID               string     `json:"id"`
	ExpertName       string     `json:"expert_name"`
	ExpertCallsign   string     `json:"expert_callsign,omitempty"`
	InterviewerName  string     `json:"interviewer_name,omitempty"`
	Topics           []string   `json:"topics,omitempty"`
	VoicePreset      string     `json:"voice_preset"`
	SpeechRate       float64    `json:"speech_rate"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	MessageCount     int        `json:"message_count"`
	CharsSynthesized int        `json:"total_chars_synthesized"`
	EstimatedCost    float64    `json:"estimated_cost"`
}

// Exchanges converts the persisted message count into completed
// expert/interviewer exchanges. The opening greeting is unpaired and
// therefore does not count as an exchange.
func (s Session) Exchanges() int {
	return s.MessageCount / 2
}

// Duration reports the elapsed interview time. Zero until the session ends.
func (s Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.CreatedAt)
}
