// Package interview implements the session engine: it owns the turn loop,
// the bounded context window, periodic knowledge extraction, and the audio
// and cost accounting for each session.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/marsdhp/sme-interview/backend/internal/audiocache"
	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
	"github.com/marsdhp/sme-interview/backend/internal/model/voice"
	"github.com/marsdhp/sme-interview/backend/internal/provider"
	"github.com/marsdhp/sme-interview/backend/internal/service/ai"
	"github.com/marsdhp/sme-interview/backend/internal/store"
)

// Config carries the engine's tunables.
type Config struct {
	// MaxWindow bounds how many recent messages are sent to the model.
	// Zero is honored as an empty window (the model sees only the system
	// prompt and the current query); negative selects the default.
	MaxWindow int
	// ExtractionInterval is the number of completed exchanges between
	// knowledge extractions.
	ExtractionInterval int
	// ProviderTimeout bounds each upstream model or synthesis call.
	ProviderTimeout time.Duration

	DefaultVoice      string
	DefaultSpeechRate float64

	// Per-token model pricing used for cost estimates.
	InputTokenCost  float64
	OutputTokenCost float64
}

// Engine coordinates one process's interview sessions. Turns within a
// session are serialized; different sessions proceed concurrently.
type Engine struct {
	store     store.Store
	completer provider.Completer
	extractor *Extractor
	audio     *audiocache.Cache
	cfg       Config

	sessionLocks sync.Map // session id -> *sync.Mutex
	extracting   sync.Map // session id -> in-flight marker
	wg           sync.WaitGroup
}

// NewEngine wires the engine. completer, extractor, and audio may each be
// nil; the engine degrades (template greetings, no extraction, text-only
// replies) rather than failing to start.
func NewEngine(st store.Store, completer provider.Completer, extractor *Extractor, audio *audiocache.Cache, cfg Config) *Engine {
	if cfg.MaxWindow < 0 {
		cfg.MaxWindow = 30
	}
	if cfg.ExtractionInterval <= 0 {
		cfg.ExtractionInterval = 10
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = voice.DefaultPreset
	}
	if cfg.DefaultSpeechRate == 0 {
		cfg.DefaultSpeechRate = voice.DefaultSpeechRate
	}
	return &Engine{
		store:     st,
		completer: completer,
		extractor: extractor,
		audio:     audio,
		cfg:       cfg,
	}
}

// StartRequest are the caller-supplied parameters for a new session.
type StartRequest struct {
	ExpertName      string   `json:"expert_name"`
	ExpertCallsign  string   `json:"expert_callsign"`
	InterviewerName string   `json:"interviewer_name"`
	Topics          []string `json:"topics"`
	VoicePreset     string   `json:"voice_preset"`
	SpeechRate      float64  `json:"speech_rate"`
}

// StartResult is returned from StartSession.
type StartResult struct {
	SessionID   string  `json:"session_id"`
	Greeting    string  `json:"greeting"`
	AudioURL    *string `json:"audio_url"`
	VoicePreset string  `json:"voice_preset"`
	SpeechRate  float64 `json:"speech_rate"`
	SessionCost float64 `json:"session_cost"`
	TotalChars  int     `json:"total_chars"`
}

// TurnResult is returned from ProcessTurn and RetryLastTurn.
type TurnResult struct {
	SessionID           string  `json:"session_id"`
	ResponseText        string  `json:"response_text"`
	AudioURL            *string `json:"audio_url"`
	MessageCount        int     `json:"message_count"`
	ExtractionTriggered bool    `json:"extraction_triggered"`
	CharsThisResponse   int     `json:"chars_this_response"`
	SessionCost         float64 `json:"session_cost"`
	TotalChars          int     `json:"total_chars"`
}

// EndResult is returned from EndSession.
type EndResult struct {
	SessionID       string  `json:"session_id"`
	Status          string  `json:"status"`
	MessageCount    int     `json:"message_count"`
	DurationSeconds int     `json:"duration_seconds"`
	TotalChars      int     `json:"total_chars_synthesized"`
	TotalCost       float64 `json:"total_cost"`
	TranscriptURL   string  `json:"transcript_url"`
	ExtractionURL   string  `json:"extraction_url"`
}

// TranscriptMessage is one turn of the public transcript view.
type TranscriptMessage struct {
	Role      interview.Role `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}

// Transcript is the public view of a session's conversation.
type Transcript struct {
	SessionID      string              `json:"session_id"`
	ExpertName     string              `json:"expert_name"`
	ExpertCallsign string              `json:"expert_callsign,omitempty"`
	Status         interview.Status    `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	Messages       []TranscriptMessage `json:"messages"`
}

// StartSession creates a session and produces the interviewer's opening
// greeting. The greeting is Message #1 so it appears in the transcript and
// in the first extraction range.
func (e *Engine) StartSession(ctx context.Context, req StartRequest) (StartResult, error) {
	name := strings.TrimSpace(req.ExpertName)
	if name == "" {
		return StartResult{}, ErrExpertNameRequired
	}

	presetKey := req.VoicePreset
	if presetKey == "" {
		presetKey = e.cfg.DefaultVoice
	}
	preset := voice.Resolve(presetKey)

	rate := req.SpeechRate
	if rate == 0 {
		rate = e.cfg.DefaultSpeechRate
	}
	rate = voice.ClampRate(rate)

	sess := interview.Session{
		ID:              uuid.NewString(),
		ExpertName:      name,
		ExpertCallsign:  strings.TrimSpace(req.ExpertCallsign),
		InterviewerName: strings.TrimSpace(req.InterviewerName),
		Topics:          req.Topics,
		VoicePreset:     preset.Key,
		SpeechRate:      rate,
		Status:          interview.StatusActive,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return StartResult{}, fmt.Errorf("create session: %w", err)
	}

	greeting, usage := e.generateGreeting(ctx, sess)
	if _, err := e.store.AppendMessage(ctx, interview.Message{
		SessionID: sess.ID,
		Role:      interview.RoleAssistant,
		Content:   greeting,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return StartResult{}, fmt.Errorf("persist greeting: %w", err)
	}

	if cost := e.tokenCost(usage); cost > 0 {
		if err := e.store.AddSessionCost(ctx, sess.ID, 0, cost); err != nil {
			logrus.WithError(err).Warn("record greeting token cost failed")
		}
	}

	audioURL, _ := e.synthesize(ctx, sess, greeting)

	current, err := e.store.GetSession(ctx, sess.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("reload session: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"expert":     sess.ExpertName,
		"voice":      preset.Key,
	}).Info("interview session started")

	return StartResult{
		SessionID:   sess.ID,
		Greeting:    greeting,
		AudioURL:    audioURL,
		VoicePreset: preset.Key,
		SpeechRate:  rate,
		SessionCost: current.EstimatedCost,
		TotalChars:  current.CharsSynthesized,
	}, nil
}

// ProcessTurn appends the expert's utterance and produces the interviewer's
// reply. On a provider failure the expert turn is kept so it can be retried.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, text string) (TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return TurnResult{}, ErrTextRequired
	}

	lock := e.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.activeSession(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	if _, err := e.store.AppendMessage(ctx, interview.Message{
		SessionID: sessionID,
		Role:      interview.RoleUser,
		Content:   strings.TrimSpace(text),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return TurnResult{}, fmt.Errorf("persist expert turn: %w", err)
	}

	return e.reply(ctx, sess)
}

// RetryLastTurn regenerates a reply to the expert's most recent turn after a
// failed ProcessTurn, without the expert having to repeat themselves.
func (e *Engine) RetryLastTurn(ctx context.Context, sessionID string) (TurnResult, error) {
	lock := e.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.activeSession(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	last, err := e.store.LastMessage(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TurnResult{}, ErrNoPendingTurn
		}
		return TurnResult{}, fmt.Errorf("load last message: %w", err)
	}
	if last.Role != interview.RoleUser {
		return TurnResult{}, ErrNoPendingTurn
	}

	return e.reply(ctx, sess)
}

// reply generates the interviewer response for the already-appended expert
// turn, persists it, and handles audio, cost, and extraction scheduling.
// Caller holds the session lock.
func (e *Engine) reply(ctx context.Context, sess interview.Session) (TurnResult, error) {
	history, err := e.store.Messages(ctx, sess.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load history: %w", err)
	}

	system, err := e.buildSystemPrompt(ctx, sess)
	if err != nil {
		return TurnResult{}, err
	}

	if e.completer == nil {
		return TurnResult{}, fmt.Errorf("%w: no chat model configured", ErrProvider)
	}

	callCtx, cancel := e.callContext(ctx)
	result, err := e.completer.Complete(callCtx, system, Window(history, e.cfg.MaxWindow))
	cancel()
	if err != nil {
		return TurnResult{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	stored, err := e.store.AppendMessage(ctx, interview.Message{
		SessionID: sess.ID,
		Role:      interview.RoleAssistant,
		Content:   result.Text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("persist reply: %w", err)
	}

	if cost := e.tokenCost(result.Usage); cost > 0 {
		if err := e.store.AddSessionCost(ctx, sess.ID, 0, cost); err != nil {
			logrus.WithError(err).Warn("record token cost failed")
		}
	}

	triggered := e.maybeExtract(ctx, sess.ID, stored.Seq)
	audioURL, chars := e.synthesize(ctx, sess, result.Text)

	current, err := e.store.GetSession(ctx, sess.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("reload session: %w", err)
	}

	return TurnResult{
		SessionID:           sess.ID,
		ResponseText:        result.Text,
		AudioURL:            audioURL,
		MessageCount:        current.Exchanges(),
		ExtractionTriggered: triggered,
		CharsThisResponse:   chars,
		SessionCost:         current.EstimatedCost,
		TotalChars:          current.CharsSynthesized,
	}, nil
}

// EndSession closes a session after a final synchronous extraction of any
// uncovered tail. Ending an already-completed session returns the same
// summary without side effects.
func (e *Engine) EndSession(ctx context.Context, sessionID string) (EndResult, error) {
	lock := e.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EndResult{}, ErrSessionNotFound
		}
		return EndResult{}, err
	}

	if sess.Status == interview.StatusActive {
		if e.extractor != nil {
			if _, err := e.extractor.Run(ctx, sessionID); err != nil {
				logrus.WithError(err).WithField("session_id", sessionID).Warn("final extraction failed")
			}
		}
		if err := e.store.CompleteSession(ctx, sessionID, time.Now().UTC()); err != nil {
			return EndResult{}, fmt.Errorf("complete session: %w", err)
		}
		sess, err = e.store.GetSession(ctx, sessionID)
		if err != nil {
			return EndResult{}, err
		}
		logrus.WithFields(logrus.Fields{
			"session_id": sessionID,
			"exchanges":  sess.Exchanges(),
			"cost":       sess.EstimatedCost,
		}).Info("interview session ended")
	}

	return EndResult{
		SessionID:       sess.ID,
		Status:          string(sess.Status),
		MessageCount:    sess.Exchanges(),
		DurationSeconds: int(sess.Duration().Seconds()),
		TotalChars:      sess.CharsSynthesized,
		TotalCost:       sess.EstimatedCost,
		TranscriptURL:   "/api/transcript/" + sess.ID,
		ExtractionURL:   "/api/extraction/" + sess.ID,
	}, nil
}

// Transcript returns the full conversation of a session.
func (e *Engine) Transcript(ctx context.Context, sessionID string) (Transcript, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Transcript{}, ErrSessionNotFound
		}
		return Transcript{}, err
	}

	messages, err := e.store.Messages(ctx, sessionID)
	if err != nil {
		return Transcript{}, err
	}

	out := Transcript{
		SessionID:      sess.ID,
		ExpertName:     sess.ExpertName,
		ExpertCallsign: sess.ExpertCallsign,
		Status:         sess.Status,
		CreatedAt:      sess.CreatedAt,
		Messages:       make([]TranscriptMessage, 0, len(messages)),
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, TranscriptMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return out, nil
}

// Knowledge returns the merged knowledge extracted so far. Valid for active
// and completed sessions alike.
func (e *Engine) Knowledge(ctx context.Context, sessionID string) (interview.Knowledge, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return interview.Knowledge{}, ErrSessionNotFound
		}
		return interview.Knowledge{}, err
	}
	if e.extractor == nil {
		return interview.Knowledge{}, nil
	}
	return e.extractor.Merged(ctx, sessionID)
}

// Close waits for in-flight background extractions to drain.
func (e *Engine) Close() error {
	e.wg.Wait()
	return nil
}

// maybeExtract schedules a background extraction when enough unprocessed
// exchanges have accumulated. At most one extraction per session runs at a
// time; the extractor itself recomputes the range under that guarantee, so
// a stale trigger can never produce overlapping ranges.
func (e *Engine) maybeExtract(ctx context.Context, sessionID string, lastSeq int) bool {
	if e.extractor == nil {
		return false
	}

	lastEnd, err := e.store.LastExtractedSeq(ctx, sessionID)
	if err != nil {
		logrus.WithError(err).Warn("load extraction watermark failed")
		return false
	}
	if (lastSeq-lastEnd)/2 < e.cfg.ExtractionInterval {
		return false
	}

	if _, busy := e.extracting.LoadOrStore(sessionID, struct{}{}); busy {
		return false
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.extracting.Delete(sessionID)

		// Detached from the request context so an early client disconnect
		// does not abort the extraction.
		if _, err := e.extractor.Run(context.Background(), sessionID); err != nil {
			logrus.WithError(err).WithField("session_id", sessionID).Warn("background extraction failed")
		}
	}()
	return true
}

// synthesize produces cached audio for a reply. Synthesis failures degrade
// to a text-only response; cost accrues only when new audio was produced.
func (e *Engine) synthesize(ctx context.Context, sess interview.Session, text string) (*string, int) {
	if e.audio == nil {
		return nil, 0
	}

	preset := voice.Resolve(sess.VoicePreset)
	chars := utf8.RuneCountInString(text)

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	entry, hit, err := e.audio.GetOrSynthesize(callCtx, text, preset, sess.SpeechRate)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Warn("synthesis failed, returning text only")
		return nil, 0
	}

	if !hit {
		cost := float64(chars) * preset.CostPerChar
		if err := e.store.AddSessionCost(ctx, sess.ID, chars, cost); err != nil {
			logrus.WithError(err).Warn("record synthesis cost failed")
		}
	}

	url := entry.URL()
	return &url, chars
}

// generateGreeting asks the model for a personalized opening; when no model
// is configured or the call fails, a fixed template keeps session creation
// from ever failing on the provider.
func (e *Engine) generateGreeting(ctx context.Context, sess interview.Session) (string, provider.Usage) {
	if e.completer == nil {
		return fallbackGreeting(sess), provider.Usage{}
	}

	var b strings.Builder
	b.WriteString(ai.InterviewerSystemPrompt)
	b.WriteString("\n\nThe interview is just beginning. Greet the expert warmly by name")
	if sess.ExpertCallsign != "" {
		b.WriteString(" and callsign")
	}
	b.WriteString(", thank them for contributing, and ask one opening question.")

	seed := "Expert: " + sess.ExpertName
	if sess.ExpertCallsign != "" {
		seed += " (" + sess.ExpertCallsign + ")"
	}
	if len(sess.Topics) > 0 {
		seed += "\nPlanned topics: " + strings.Join(sess.Topics, ", ")
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	result, err := e.completer.Complete(callCtx, b.String(), []interview.Message{
		{Role: interview.RoleUser, Content: seed},
	})
	if err != nil || strings.TrimSpace(result.Text) == "" {
		if err != nil {
			logrus.WithError(err).Warn("greeting generation failed, using template")
		}
		return fallbackGreeting(sess), provider.Usage{}
	}
	return result.Text, result.Usage
}

func fallbackGreeting(sess interview.Session) string {
	who := sess.ExpertName
	if sess.ExpertCallsign != "" {
		who += ", " + sess.ExpertCallsign
	}
	greeting := fmt.Sprintf(
		"Welcome, %s, and thank you for taking the time to share your experience with the MARS Digital History Project.",
		who)
	if len(sess.Topics) > 0 {
		greeting += fmt.Sprintf(" I'd love to start with %s. How did you first get involved?", sess.Topics[0])
	} else {
		greeting += " To start us off, how did you first get involved with HF digital communications?"
	}
	return greeting
}

// buildSystemPrompt combines the interviewer instructions with session
// details and the knowledge captured so far, so the model remembers earlier
// parts of the interview even after they fall out of the context window.
func (e *Engine) buildSystemPrompt(ctx context.Context, sess interview.Session) (string, error) {
	var b strings.Builder
	b.WriteString(ai.InterviewerSystemPrompt)

	b.WriteString("\n\n## CURRENT INTERVIEW\nExpert: " + sess.ExpertName)
	if sess.ExpertCallsign != "" {
		b.WriteString(" (" + sess.ExpertCallsign + ")")
	}
	if len(sess.Topics) > 0 {
		b.WriteString("\nPlanned topics: " + strings.Join(sess.Topics, ", "))
	}

	if e.extractor != nil {
		known, err := e.extractor.Merged(ctx, sess.ID)
		if err != nil {
			return "", fmt.Errorf("load session knowledge: %w", err)
		}
		if summary := formatKnowledge(known); summary != "" {
			b.WriteString("\n\n## ALREADY COVERED\n")
			b.WriteString(summary)
			b.WriteString("\nDo not re-ask about these unless following up on a specific detail.")
		}
	}

	return b.String(), nil
}

func formatKnowledge(k interview.Knowledge) string {
	var b strings.Builder
	if len(k.TopicsDiscussed) > 0 {
		b.WriteString("Topics discussed: " + strings.Join(k.TopicsDiscussed, ", ") + "\n")
	}
	for _, ins := range k.KeyInsights {
		b.WriteString("- [" + ins.Topic + "] " + ins.Insight + "\n")
	}
	if len(k.FollowUpTopics) > 0 {
		b.WriteString("Worth exploring next: " + strings.Join(k.FollowUpTopics, ", ") + "\n")
	}
	return b.String()
}

// activeSession loads a session and rejects completed ones.
func (e *Engine) activeSession(ctx context.Context, sessionID string) (interview.Session, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return interview.Session{}, ErrSessionNotFound
		}
		return interview.Session{}, err
	}
	if sess.Status != interview.StatusActive {
		return interview.Session{}, ErrSessionClosed
	}
	return sess, nil
}

func (e *Engine) lockFor(sessionID string) *sync.Mutex {
	v, _ := e.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.ProviderTimeout)
}

func (e *Engine) tokenCost(u provider.Usage) float64 {
	return float64(u.PromptTokens)*e.cfg.InputTokenCost + float64(u.CompletionTokens)*e.cfg.OutputTokenCost
}
