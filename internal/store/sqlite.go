package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
)

// ErrSessionCompleted is returned when a write targets a completed session.
var ErrSessionCompleted = errors.New("session completed")

// SQLite is the production Store backed by a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; serialize access through a single
	// connection instead of relying on busy retries.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			expert_name TEXT NOT NULL,
			expert_callsign TEXT,
			interviewer_name TEXT,
			topics TEXT,
			voice_preset TEXT NOT NULL,
			speech_rate REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			ended_at TEXT,
			message_count INTEGER NOT NULL DEFAULT 0,
			total_chars_synthesized INTEGER NOT NULL DEFAULT 0,
			estimated_cost REAL NOT NULL DEFAULT 0.0
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id),
			UNIQUE (session_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS extractions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			extraction_data TEXT NOT NULL,
			message_range_start INTEGER NOT NULL,
			message_range_end INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_session ON extractions(session_id)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateSession(ctx context.Context, sess interview.Session) error {
	var topics sql.NullString
	if len(sess.Topics) > 0 {
		raw, err := json.Marshal(sess.Topics)
		if err != nil {
			return fmt.Errorf("marshal topics: %w", err)
		}
		topics = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, expert_name, expert_callsign, interviewer_name, topics,
			voice_preset, speech_rate, status, created_at, message_count,
			total_chars_synthesized, estimated_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0.0)`,
		sess.ID, sess.ExpertName, nullable(sess.ExpertCallsign), nullable(sess.InterviewerName),
		topics, sess.VoicePreset, sess.SpeechRate, string(sess.Status),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLite) GetSession(ctx context.Context, id string) (interview.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, expert_name, expert_callsign, interviewer_name, topics, voice_preset,
			speech_rate, status, created_at, ended_at, message_count,
			total_chars_synthesized, estimated_cost
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLite) ListSessions(ctx context.Context, status interview.Status) ([]interview.Session, error) {
	query := `
		SELECT id, expert_name, expert_callsign, interviewer_name, topics, voice_preset,
			speech_rate, status, created_at, ended_at, message_count,
			total_chars_synthesized, estimated_cost
		FROM sessions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []interview.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLite) CompleteSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?`,
		string(interview.StatusCompleted), endedAt.UTC().Format(time.RFC3339Nano),
		id, string(interview.StatusActive))
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either missing or already completed; disambiguate for the caller.
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) AddSessionCost(ctx context.Context, id string, chars int, cost float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET total_chars_synthesized = total_chars_synthesized + ?,
			estimated_cost = estimated_cost + ?
		WHERE id = ?`, chars, cost, id)
	if err != nil {
		return fmt.Errorf("update session cost: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM extractions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete extractions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLite) AppendMessage(ctx context.Context, m interview.Message) (interview.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return interview.Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, m.SessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return interview.Message{}, ErrNotFound
	}
	if err != nil {
		return interview.Message{}, fmt.Errorf("load session status: %w", err)
	}
	if status == string(interview.StatusCompleted) {
		return interview.Message{}, ErrSessionCompleted
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`,
		m.SessionID).Scan(&next); err != nil {
		return interview.Message{}, fmt.Errorf("next seq: %w", err)
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Seq = next

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.SessionID, m.Seq, string(m.Role), m.Content, m.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return interview.Message{}, fmt.Errorf("insert message: %w", err)
	}
	m.ID, _ = res.LastInsertId()

	if m.Role != interview.RoleSystem {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET message_count = message_count + 1 WHERE id = ?`,
			m.SessionID); err != nil {
			return interview.Message{}, fmt.Errorf("bump message count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return interview.Message{}, fmt.Errorf("commit append: %w", err)
	}
	return m, nil
}

func (s *SQLite) Messages(ctx context.Context, sessionID string) ([]interview.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var messages []interview.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLite) LastMessage(ctx context.Context, sessionID string) (interview.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, seq, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT 1`, sessionID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return interview.Message{}, ErrNotFound
	}
	return m, err
}

func (s *SQLite) CreateExtraction(ctx context.Context, e interview.Extraction) (interview.Extraction, error) {
	payload, err := json.Marshal(e.Knowledge)
	if err != nil {
		return interview.Extraction{}, fmt.Errorf("marshal knowledge: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO extractions (session_id, extraction_data, message_range_start, message_range_end, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, string(payload), e.RangeStart, e.RangeEnd,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return interview.Extraction{}, fmt.Errorf("insert extraction: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return e, nil
}

func (s *SQLite) Extractions(ctx context.Context, sessionID string) ([]interview.Extraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, extraction_data, message_range_start, message_range_end, created_at
		FROM extractions WHERE session_id = ? ORDER BY message_range_start ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load extractions: %w", err)
	}
	defer rows.Close()

	var extractions []interview.Extraction
	for rows.Next() {
		var (
			e       interview.Extraction
			payload string
			created string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &payload, &e.RangeStart, &e.RangeEnd, &created); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Knowledge); err != nil {
			return nil, fmt.Errorf("unmarshal knowledge: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		extractions = append(extractions, e)
	}
	return extractions, rows.Err()
}

func (s *SQLite) LastExtractedSeq(ctx context.Context, sessionID string) (int, error) {
	var last int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(message_range_end), 0) FROM extractions WHERE session_id = ?`,
		sessionID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last extracted seq: %w", err)
	}
	return last, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (interview.Session, error) {
	var (
		sess      interview.Session
		callsign  sql.NullString
		inter     sql.NullString
		topics    sql.NullString
		status    string
		createdAt string
		endedAt   sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.ExpertName, &callsign, &inter, &topics, &sess.VoicePreset,
		&sess.SpeechRate, &status, &createdAt, &endedAt, &sess.MessageCount,
		&sess.CharsSynthesized, &sess.EstimatedCost)
	if errors.Is(err, sql.ErrNoRows) {
		return interview.Session{}, ErrNotFound
	}
	if err != nil {
		return interview.Session{}, fmt.Errorf("scan session: %w", err)
	}

	sess.ExpertCallsign = callsign.String
	sess.InterviewerName = inter.String
	sess.Status = interview.Status(status)
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err == nil {
			sess.EndedAt = &t
		}
	}
	if topics.Valid && topics.String != "" {
		if err := json.Unmarshal([]byte(topics.String), &sess.Topics); err != nil {
			return interview.Session{}, fmt.Errorf("unmarshal topics: %w", err)
		}
	}
	return sess, nil
}

func scanMessage(row rowScanner) (interview.Message, error) {
	var (
		m       interview.Message
		role    string
		created string
	)
	if err := row.Scan(&m.ID, &m.SessionID, &m.Seq, &role, &m.Content, &created); err != nil {
		return interview.Message{}, err
	}
	m.Role = interview.Role(role)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return m, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
