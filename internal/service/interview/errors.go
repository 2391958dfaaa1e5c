package interview

import "errors"

var (
	ErrExpertNameRequired = errors.New("expert name is required")
	ErrTextRequired       = errors.New("text is required")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionClosed      = errors.New("session is closed")
	// ErrNoPendingTurn means retry was requested but the last stored message
	// is not an unanswered expert turn.
	ErrNoPendingTurn = errors.New("no expert turn awaiting a reply")
	// ErrProvider wraps upstream model failures so handlers can map them to a
	// 502 without inspecting provider internals.
	ErrProvider = errors.New("provider error")
)
