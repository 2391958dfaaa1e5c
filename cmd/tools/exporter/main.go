// Command exporter writes a session's transcript and extracted knowledge to
// the exports directory as Markdown and JSON, for archival outside the
// database.
//
// Usage:
//
//	exporter -session <id>
//	exporter -all
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/marsdhp/sme-interview/backend/internal/config"
	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
	interviewService "github.com/marsdhp/sme-interview/backend/internal/service/interview"
	"github.com/marsdhp/sme-interview/backend/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fatalf("load configuration: %v", err)
	}

	sessionID := flag.String("session", "", "session id to export")
	all := flag.Bool("all", false, "export every completed session")
	outDir := flag.String("out", cfg.Paths.ExportsDir, "output directory")
	flag.Parse()

	if *sessionID == "" && !*all {
		fmt.Fprintln(os.Stderr, "usage: exporter -session <id> | exporter -all")
		os.Exit(2)
	}

	db, err := store.Open(cfg.Paths.DatabasePath)
	if err != nil {
		fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fatalf("create export dir: %v", err)
	}

	ctx := context.Background()

	var ids []string
	if *all {
		sessions, err := db.ListSessions(ctx, interview.StatusCompleted)
		if err != nil {
			fatalf("list sessions: %v", err)
		}
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
	} else {
		ids = []string{*sessionID}
	}

	for _, id := range ids {
		if err := export(ctx, db, id, *outDir); err != nil {
			fatalf("export %s: %v", id, err)
		}
	}
}

func export(ctx context.Context, db store.Store, id, outDir string) error {
	sess, err := db.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	messages, err := db.Messages(ctx, id)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	extractions, err := db.Extractions(ctx, id)
	if err != nil {
		return fmt.Errorf("load extractions: %w", err)
	}
	var knowledge interview.Knowledge
	for _, e := range extractions {
		knowledge = interviewService.MergeKnowledge(knowledge, e.Knowledge)
	}

	base := sess.CreatedAt.Format("2006-01-02") + "_" + sanitize(sess.ExpertName) + "_" + id[:8]

	if err := os.WriteFile(filepath.Join(outDir, base+"_transcript.md"), transcriptMarkdown(sess, messages), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	payload, err := json.MarshalIndent(map[string]any{
		"session":   sess,
		"knowledge": knowledge,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode knowledge: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, base+"_knowledge.json"), payload, 0o644); err != nil {
		return fmt.Errorf("write knowledge: %w", err)
	}

	fmt.Printf("exported %s (%d messages, %d extractions)\n", id, len(messages), len(extractions))
	return nil
}

func transcriptMarkdown(sess interview.Session, messages []interview.Message) []byte {
	var b strings.Builder

	b.WriteString("# Interview Transcript: " + sess.ExpertName)
	if sess.ExpertCallsign != "" {
		b.WriteString(" (" + sess.ExpertCallsign + ")")
	}
	b.WriteString("\n\n")
	b.WriteString("- Date: " + sess.CreatedAt.Format("2006-01-02 15:04 MST") + "\n")
	if len(sess.Topics) > 0 {
		b.WriteString("- Topics: " + strings.Join(sess.Topics, ", ") + "\n")
	}
	b.WriteString(fmt.Sprintf("- Exchanges: %d\n", sess.Exchanges()))
	if sess.EndedAt != nil {
		b.WriteString(fmt.Sprintf("- Duration: %s\n", sess.Duration().Round(time.Second)))
	}
	b.WriteString("\n---\n\n")

	for _, m := range messages {
		switch m.Role {
		case interview.RoleAssistant:
			b.WriteString("**Interviewer:** " + m.Content + "\n\n")
		case interview.RoleUser:
			b.WriteString("**" + sess.ExpertName + ":** " + m.Content + "\n\n")
		}
	}
	return []byte(b.String())
}

func sanitize(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ', c == '-', c == '_':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
