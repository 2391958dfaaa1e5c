// Package provider defines the abstract contracts for the external AI and
// speech services the interview engine depends on. Implementations live in
// internal/service; tests substitute fakes.
package provider

import (
	"context"

	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
)

// Usage is the token accounting reported by the conversational model for a
// single call. Zero values mean the provider did not report usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Reply is the outcome of one completion call.
type Reply struct {
	Text  string
	Usage Usage
}

// Completer produces the next interviewer utterance. The history must be in
// chronological order and normally ends with the expert's latest message.
type Completer interface {
	Complete(ctx context.Context, system string, history []interview.Message) (Reply, error)
}

// Extractor runs the knowledge-extraction model call over a formatted
// conversation segment and returns the raw model output. Parsing the output
// into structured knowledge is the caller's concern.
type Extractor interface {
	Extract(ctx context.Context, system, conversation string) (Reply, error)
}

// Audio is a synthesized speech payload.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer converts text to speech. rate is the speaking-rate multiplier
// already normalized for the chosen voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceName string, rate float64) (Audio, error)
}
