package interview

import "time"

// Knowledge is the structured summary distilled from a span of conversation.
// The shape mirrors what the extraction model is asked to emit; all fields
// are optional in any given payload.
type Knowledge struct {
	TopicsDiscussed  []string          `json:"topics_discussed"`
	KeyInsights      []Insight         `json:"key_insights"`
	PeopleMentioned  []Person          `json:"people_mentioned"`
	TechnicalDetails []TechnicalDetail `json:"technical_details"`
	LessonsLearned   []string          `json:"lessons_learned"`
	OpenQuestions    []string          `json:"open_questions"`
	FollowUpTopics   []string          `json:"follow_up_topics"`
}

// Insight is a single piece of captured expertise with its provenance.
type Insight struct {
	Topic       string `json:"topic"`
	Insight     string `json:"insight"`
	SourceQuote string `json:"source_quote,omitempty"`
	Importance  string `json:"importance,omitempty"`
}

// Person is a contributor referenced during the interview.
type Person struct {
	Name     string `json:"name"`
	Callsign string `json:"callsign,omitempty"`
	Context  string `json:"context,omitempty"`
}

// TechnicalDetail records an implementation fact and, when given, why it
// was done that way.
type TechnicalDetail struct {
	System    string `json:"system"`
	Detail    string `json:"detail"`
	Rationale string `json:"rationale,omitempty"`
}

// Extraction is one persisted knowledge summary covering the inclusive
// message sequence range [RangeStart, RangeEnd]. Ranges for a session
// never overlap: each extraction picks up where the previous one ended.
type Extraction struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Knowledge  Knowledge `json:"knowledge"`
	RangeStart int       `json:"message_range_start"`
	RangeEnd   int       `json:"message_range_end"`
	CreatedAt  time.Time `json:"created_at"`
}
