package interview

import (
	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
)

// Window returns the trailing max messages of history in chronological
// order. History older than the window is not lost: it lives in the store
// and in the periodic knowledge extractions, so the live prompt can stay
// bounded without forgetting the interview.
func Window(history []interview.Message, max int) []interview.Message {
	if max <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}
