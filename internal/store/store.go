// Package store persists interview sessions, their messages, and knowledge
// extractions. The SQLite implementation is the production backend; the
// interface exists so the engine and tools never touch SQL directly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
)

// ErrNotFound is returned when the requested session does not exist.
var ErrNotFound = errors.New("not found")

// Store is the durable record of every interview. All methods provide
// read-your-writes consistency within the process.
type Store interface {
	CreateSession(ctx context.Context, s interview.Session) error
	GetSession(ctx context.Context, id string) (interview.Session, error)
	ListSessions(ctx context.Context, status interview.Status) ([]interview.Session, error)
	// CompleteSession transitions a session to completed and stamps the end
	// time. Completing an already-completed session is a no-op.
	CompleteSession(ctx context.Context, id string, endedAt time.Time) error
	// AddSessionCost accumulates synthesized characters and estimated spend.
	AddSessionCost(ctx context.Context, id string, chars int, cost float64) error
	// DeleteSession removes a session with its messages and extractions.
	// Administrative operation; the engine itself never deletes.
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage assigns the next sequence number and persists the
	// message atomically, bumping the session's message count for
	// non-system roles. The stored message is returned.
	AppendMessage(ctx context.Context, m interview.Message) (interview.Message, error)
	Messages(ctx context.Context, sessionID string) ([]interview.Message, error)
	LastMessage(ctx context.Context, sessionID string) (interview.Message, error)

	CreateExtraction(ctx context.Context, e interview.Extraction) (interview.Extraction, error)
	Extractions(ctx context.Context, sessionID string) ([]interview.Extraction, error)
	// LastExtractedSeq reports the highest message sequence covered by a
	// successful extraction, or 0 when none exist.
	LastExtractedSeq(ctx context.Context, sessionID string) (int, error)

	Close() error
}
