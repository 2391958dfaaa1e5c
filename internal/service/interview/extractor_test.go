package interview

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
	"github.com/marsdhp/sme-interview/backend/internal/provider"
	"github.com/marsdhp/sme-interview/backend/internal/store"
)

func TestParseKnowledgePlainJSON(t *testing.T) {
	raw := `{"topics_discussed":["ALE"],"key_insights":[{"topic":"ALE","insight":"timing is everything","importance":"high"}],"lessons_learned":["test on air"]}`
	k, err := parseKnowledge(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(k.TopicsDiscussed) != 1 || k.TopicsDiscussed[0] != "ALE" {
		t.Errorf("unexpected topics: %v", k.TopicsDiscussed)
	}
	if len(k.KeyInsights) != 1 || k.KeyInsights[0].Importance != "high" {
		t.Errorf("unexpected insights: %v", k.KeyInsights)
	}
}

func TestParseKnowledgeCodeFence(t *testing.T) {
	raw := "Here is the extraction:\n```json\n{\"topics_discussed\":[\"modems\"]}\n```\nDone."
	k, err := parseKnowledge(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(k.TopicsDiscussed) != 1 || k.TopicsDiscussed[0] != "modems" {
		t.Errorf("unexpected topics: %v", k.TopicsDiscussed)
	}
}

func TestParseKnowledgeRejectsNonJSON(t *testing.T) {
	if _, err := parseKnowledge("I could not extract anything useful."); err == nil {
		t.Fatal("expected error for non-JSON output")
	}
}

func TestMergeKnowledgeDeduplicates(t *testing.T) {
	a := interview.Knowledge{
		TopicsDiscussed: []string{"ALE", "Propagation"},
		KeyInsights: []interview.Insight{
			{Topic: "ALE", Insight: "Sounding intervals matter"},
		},
		PeopleMentioned: []interview.Person{
			{Name: "Bill", Callsign: "AAR1AB"},
		},
		TechnicalDetails: []interview.TechnicalDetail{
			{System: "PC-ALE", Detail: "uses 8FSK"},
		},
		LessonsLearned: []string{"Test on real hardware"},
		OpenQuestions:  []string{"What happened to the v2 modem?"},
		FollowUpTopics: []string{"Antenna tuning"},
	}
	b := interview.Knowledge{
		TopicsDiscussed: []string{"ale", "Antennas"},
		KeyInsights: []interview.Insight{
			{Topic: "ALE", Insight: "sounding intervals matter"},
			{Topic: "DSP", Insight: "Fixed point beats floating on old hardware"},
		},
		PeopleMentioned: []interview.Person{
			{Name: "bill"},
			{Name: "Sarah", Callsign: "AAR2CD"},
		},
		TechnicalDetails: []interview.TechnicalDetail{
			{System: "pc-ale", Detail: "uses 8fsk"},
			{System: "MS-DMT", Detail: "serial timing quirks"},
		},
		LessonsLearned: []string{"test on real hardware", "Document as you go"},
		OpenQuestions:  []string{"Who maintains the archive now?"},
	}

	m := MergeKnowledge(a, b)

	if len(m.TopicsDiscussed) != 3 {
		t.Errorf("expected 3 unique topics, got %v", m.TopicsDiscussed)
	}
	if len(m.KeyInsights) != 2 {
		t.Errorf("expected 2 unique insights, got %v", m.KeyInsights)
	}
	if len(m.PeopleMentioned) != 2 {
		t.Errorf("expected 2 unique people, got %v", m.PeopleMentioned)
	}
	if len(m.TechnicalDetails) != 2 {
		t.Errorf("expected 2 unique details, got %v", m.TechnicalDetails)
	}
	if len(m.LessonsLearned) != 2 {
		t.Errorf("expected 2 unique lessons, got %v", m.LessonsLearned)
	}
	// First appearance wins, preserving original casing.
	if m.TopicsDiscussed[0] != "ALE" {
		t.Errorf("expected first-seen casing kept, got %q", m.TopicsDiscussed[0])
	}
	// Newest extraction replaces open questions; follow-ups keep the old
	// list when the new payload has none.
	if len(m.OpenQuestions) != 1 || m.OpenQuestions[0] != "Who maintains the archive now?" {
		t.Errorf("expected latest open questions, got %v", m.OpenQuestions)
	}
	if len(m.FollowUpTopics) != 1 || m.FollowUpTopics[0] != "Antenna tuning" {
		t.Errorf("expected follow-ups retained, got %v", m.FollowUpTopics)
	}
}

func TestMergeKnowledgeSkipsEmptyKeys(t *testing.T) {
	m := MergeKnowledge(interview.Knowledge{}, interview.Knowledge{
		TopicsDiscussed: []string{"", "  "},
		PeopleMentioned: []interview.Person{{Name: ""}},
	})
	if len(m.TopicsDiscussed) != 0 || len(m.PeopleMentioned) != 0 {
		t.Errorf("expected blank entries dropped, got %+v", m)
	}
}

type fakeExtractorProvider struct {
	response string
	err      error
	calls    int
	lastConv string
}

func (f *fakeExtractorProvider) Extract(_ context.Context, _, conversation string) (provider.Reply, error) {
	f.calls++
	f.lastConv = conversation
	if f.err != nil {
		return provider.Reply{}, f.err
	}
	return provider.Reply{Text: f.response}, nil
}

func extractorFixture(t *testing.T, p provider.Extractor) (*Extractor, *store.SQLite) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewExtractor(p, st, time.Second), st
}

func seedConversation(t *testing.T, st *store.SQLite, sessionID string, turns int) {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateSession(ctx, interview.Session{
		ID: sessionID, ExpertName: "Expert", VoicePreset: "premium_female",
		Status: interview.StatusActive, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	// Greeting first, then alternating expert/interviewer turns.
	st.AppendMessage(ctx, interview.Message{SessionID: sessionID, Role: interview.RoleAssistant, Content: "welcome"})
	for i := 0; i < turns; i++ {
		st.AppendMessage(ctx, interview.Message{SessionID: sessionID, Role: interview.RoleUser, Content: "expert says"})
		st.AppendMessage(ctx, interview.Message{SessionID: sessionID, Role: interview.RoleAssistant, Content: "interviewer asks"})
	}
}

func TestExtractorRunCoversUnprocessedTail(t *testing.T) {
	fake := &fakeExtractorProvider{response: `{"topics_discussed":["ALE"]}`}
	x, st := extractorFixture(t, fake)
	seedConversation(t, st, "s1", 10)

	ext, err := x.Run(context.Background(), "s1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ext == nil {
		t.Fatal("expected an extraction record")
	}
	if ext.RangeStart != 1 || ext.RangeEnd != 21 {
		t.Errorf("expected range [1,21], got [%d,%d]", ext.RangeStart, ext.RangeEnd)
	}

	// A second run with no new messages must be a no-op.
	again, err := x.Run(context.Background(), "s1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again != nil {
		t.Errorf("expected nothing to extract, got %+v", again)
	}
	if fake.calls != 1 {
		t.Errorf("expected one model call, got %d", fake.calls)
	}
}

func TestExtractorRunContiguousRanges(t *testing.T) {
	fake := &fakeExtractorProvider{response: `{"topics_discussed":["t"]}`}
	x, st := extractorFixture(t, fake)
	seedConversation(t, st, "s1", 10)
	ctx := context.Background()

	if _, err := x.Run(ctx, "s1"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	for i := 0; i < 10; i++ {
		st.AppendMessage(ctx, interview.Message{SessionID: "s1", Role: interview.RoleUser, Content: "more"})
		st.AppendMessage(ctx, interview.Message{SessionID: "s1", Role: interview.RoleAssistant, Content: "go on"})
	}

	second, err := x.Run(ctx, "s1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.RangeStart != 22 || second.RangeEnd != 41 {
		t.Errorf("expected range [22,41], got [%d,%d]", second.RangeStart, second.RangeEnd)
	}
}

func TestExtractorFailurePersistsNothing(t *testing.T) {
	fake := &fakeExtractorProvider{response: "not json at all"}
	x, st := extractorFixture(t, fake)
	seedConversation(t, st, "s1", 10)
	ctx := context.Background()

	if _, err := x.Run(ctx, "s1"); err == nil {
		t.Fatal("expected parse failure")
	}
	extractions, _ := st.Extractions(ctx, "s1")
	if len(extractions) != 0 {
		t.Fatalf("expected no records after failure, got %d", len(extractions))
	}

	// The range stays eligible: a later successful run covers it.
	fake.response = `{"topics_discussed":["recovered"]}`
	ext, err := x.Run(ctx, "s1")
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if ext.RangeStart != 1 || ext.RangeEnd != 21 {
		t.Errorf("expected retry to cover [1,21], got [%d,%d]", ext.RangeStart, ext.RangeEnd)
	}
}

func TestExtractorInputIncludesRolesAndExistingKnowledge(t *testing.T) {
	fake := &fakeExtractorProvider{response: `{"topics_discussed":["first"]}`}
	x, st := extractorFixture(t, fake)
	seedConversation(t, st, "s1", 10)
	ctx := context.Background()

	if _, err := x.Run(ctx, "s1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !strings.Contains(fake.lastConv, "Expert: expert says") || !strings.Contains(fake.lastConv, "Interviewer: interviewer asks") {
		t.Errorf("expected role-tagged transcript, got %q", fake.lastConv)
	}

	st.AppendMessage(ctx, interview.Message{SessionID: "s1", Role: interview.RoleUser, Content: "new material"})
	if _, err := x.Run(ctx, "s1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(fake.lastConv, "first") {
		t.Errorf("expected existing knowledge in prompt, got %q", fake.lastConv)
	}
}
