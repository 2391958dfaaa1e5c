package interview

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
	"github.com/marsdhp/sme-interview/backend/internal/provider"
	"github.com/marsdhp/sme-interview/backend/internal/service/ai"
	"github.com/marsdhp/sme-interview/backend/internal/store"
)

// Extractor distills unprocessed conversation into structured knowledge
// records. Each run covers exactly the messages appended since the previous
// successful extraction, so the ranges stored for a session never overlap
// and never leave gaps.
type Extractor struct {
	provider provider.Extractor
	store    store.Store
	timeout  time.Duration

	// Runs for one session are serialized; the second runner recomputes the
	// watermark under the lock and finds nothing left to cover.
	sessions sync.Map
}

// NewExtractor creates an extractor over the given model provider and store.
func NewExtractor(p provider.Extractor, st store.Store, timeout time.Duration) *Extractor {
	return &Extractor{provider: p, store: st, timeout: timeout}
}

func (x *Extractor) sessionLock(sessionID string) *sync.Mutex {
	v, _ := x.sessions.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Run extracts knowledge from the unprocessed tail of the session. It
// returns nil with no error when there is nothing new to extract. A model
// or parse failure returns an error and persists nothing; the uncovered
// range stays eligible for the next attempt.
func (x *Extractor) Run(ctx context.Context, sessionID string) (*interview.Extraction, error) {
	if x.provider == nil {
		return nil, fmt.Errorf("no extraction provider configured")
	}

	lock := x.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	lastEnd, err := x.store.LastExtractedSeq(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load extraction watermark: %w", err)
	}

	messages, err := x.store.Messages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	var tail []interview.Message
	for _, m := range messages {
		if m.Seq > lastEnd {
			tail = append(tail, m)
		}
	}
	if len(tail) == 0 {
		return nil, nil
	}

	existing, err := x.Merged(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load existing knowledge: %w", err)
	}

	runCtx := ctx
	if x.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	reply, err := x.provider.Extract(runCtx, ai.ExtractorSystemPrompt, buildExtractionInput(tail, existing))
	if err != nil {
		return nil, fmt.Errorf("extraction model call: %w", err)
	}

	knowledge, err := parseKnowledge(reply.Text)
	if err != nil {
		return nil, fmt.Errorf("parse extraction output: %w", err)
	}

	record := interview.Extraction{
		SessionID:  sessionID,
		Knowledge:  knowledge,
		RangeStart: tail[0].Seq,
		RangeEnd:   tail[len(tail)-1].Seq,
		CreatedAt:  time.Now().UTC(),
	}

	stored, err := x.store.CreateExtraction(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("persist extraction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"range_start": stored.RangeStart,
		"range_end":   stored.RangeEnd,
		"insights":    len(stored.Knowledge.KeyInsights),
	}).Info("knowledge extraction stored")

	return &stored, nil
}

// Merged folds every stored extraction of the session into one deduplicated
// knowledge view, in extraction order.
func (x *Extractor) Merged(ctx context.Context, sessionID string) (interview.Knowledge, error) {
	extractions, err := x.store.Extractions(ctx, sessionID)
	if err != nil {
		return interview.Knowledge{}, err
	}

	var merged interview.Knowledge
	for _, e := range extractions {
		merged = MergeKnowledge(merged, e.Knowledge)
	}
	return merged, nil
}

// buildExtractionInput formats the conversation segment for the extraction
// model, including already-captured knowledge so the model can avoid
// repeating it.
func buildExtractionInput(tail []interview.Message, existing interview.Knowledge) string {
	var b strings.Builder

	if len(existing.TopicsDiscussed) > 0 || len(existing.KeyInsights) > 0 {
		b.WriteString("Knowledge already captured from earlier in this interview:\n")
		if len(existing.TopicsDiscussed) > 0 {
			b.WriteString("Topics: " + strings.Join(existing.TopicsDiscussed, ", ") + "\n")
		}
		for _, ins := range existing.KeyInsights {
			b.WriteString("- [" + ins.Topic + "] " + ins.Insight + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Transcript segment to analyze:\n\n")
	for _, m := range tail {
		switch m.Role {
		case interview.RoleUser:
			b.WriteString("Expert: " + m.Content + "\n\n")
		case interview.RoleAssistant:
			b.WriteString("Interviewer: " + m.Content + "\n\n")
		}
	}
	return b.String()
}

// parseKnowledge decodes the model's JSON output. Models sometimes wrap the
// object in prose or a code fence, so a second pass extracts the outermost
// brace-delimited object before giving up.
func parseKnowledge(raw string) (interview.Knowledge, error) {
	var k interview.Knowledge

	text := strings.TrimSpace(raw)
	if err := sonic.UnmarshalString(text, &k); err == nil {
		return k, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return interview.Knowledge{}, fmt.Errorf("no JSON object in model output")
	}
	if err := sonic.UnmarshalString(text[start:end+1], &k); err != nil {
		return interview.Knowledge{}, err
	}
	return k, nil
}

// MergeKnowledge combines two knowledge payloads. Topics and lessons are
// unioned case-insensitively, insights deduplicate by topic, people by name,
// technical details by system and detail. Open questions and follow-up
// topics are living lists: the newest extraction replaces them outright,
// since answered questions should drop off.
func MergeKnowledge(base, add interview.Knowledge) interview.Knowledge {
	out := interview.Knowledge{
		TopicsDiscussed: mergeStrings(base.TopicsDiscussed, add.TopicsDiscussed),
		LessonsLearned:  mergeStrings(base.LessonsLearned, add.LessonsLearned),
		OpenQuestions:   base.OpenQuestions,
		FollowUpTopics:  base.FollowUpTopics,
	}
	if len(add.OpenQuestions) > 0 {
		out.OpenQuestions = add.OpenQuestions
	}
	if len(add.FollowUpTopics) > 0 {
		out.FollowUpTopics = add.FollowUpTopics
	}

	seenInsights := make(map[string]bool)
	for _, ins := range append(append([]interview.Insight{}, base.KeyInsights...), add.KeyInsights...) {
		key := strings.ToLower(strings.TrimSpace(ins.Topic))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(ins.Insight))
		}
		if key == "" || seenInsights[key] {
			continue
		}
		seenInsights[key] = true
		out.KeyInsights = append(out.KeyInsights, ins)
	}

	seenPeople := make(map[string]bool)
	for _, p := range append(append([]interview.Person{}, base.PeopleMentioned...), add.PeopleMentioned...) {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(p.Callsign))
		}
		if key == "" || seenPeople[key] {
			continue
		}
		seenPeople[key] = true
		out.PeopleMentioned = append(out.PeopleMentioned, p)
	}

	seenDetails := make(map[string]bool)
	for _, d := range append(append([]interview.TechnicalDetail{}, base.TechnicalDetails...), add.TechnicalDetails...) {
		key := strings.ToLower(strings.TrimSpace(d.System) + "|" + strings.TrimSpace(d.Detail))
		if key == "|" || seenDetails[key] {
			continue
		}
		seenDetails[key] = true
		out.TechnicalDetails = append(out.TechnicalDetails, d)
	}

	return out
}

func mergeStrings(base, add []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string{}, base...), add...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
