package interview

import (
	"fmt"
	"testing"

	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
)

func makeHistory(n int) []interview.Message {
	out := make([]interview.Message, n)
	for i := range out {
		out[i] = interview.Message{Seq: i + 1, Content: fmt.Sprintf("msg %d", i+1)}
	}
	return out
}

func TestWindowShortHistoryUnchanged(t *testing.T) {
	history := makeHistory(5)
	got := Window(history, 30)
	if len(got) != 5 {
		t.Fatalf("expected all 5 messages, got %d", len(got))
	}
	if got[0].Seq != 1 || got[4].Seq != 5 {
		t.Errorf("expected chronological order preserved, got %v..%v", got[0].Seq, got[4].Seq)
	}
}

func TestWindowExactBoundary(t *testing.T) {
	history := makeHistory(30)
	if got := Window(history, 30); len(got) != 30 {
		t.Fatalf("expected 30 messages at the boundary, got %d", len(got))
	}
}

func TestWindowTruncatesOldest(t *testing.T) {
	history := makeHistory(47)
	got := Window(history, 30)
	if len(got) != 30 {
		t.Fatalf("expected 30 messages, got %d", len(got))
	}
	if got[0].Seq != 18 {
		t.Errorf("expected window to start at seq 18, got %d", got[0].Seq)
	}
	if got[len(got)-1].Seq != 47 {
		t.Errorf("expected window to end at seq 47, got %d", got[len(got)-1].Seq)
	}
}

func TestWindowEmptyAndZeroMax(t *testing.T) {
	if got := Window(nil, 30); got != nil {
		t.Errorf("expected nil for empty history, got %v", got)
	}
	if got := Window(makeHistory(3), 0); got != nil {
		t.Errorf("expected nil for zero window, got %v", got)
	}
}
