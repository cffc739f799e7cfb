package export

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reverseturing/internal/roster"
	"reverseturing/internal/transcript"
	"reverseturing/internal/voting"
)

func sampleRecord(t *testing.T) (Record, []transcript.Entry) {
	t.Helper()
	r, err := roster.Setup(3, []string{"Alex", "Jordan", "Taylor"}, true, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	base := time.Date(2026, 10, 17, 14, 3, 9, 0, time.UTC)
	log := transcript.NewLog()
	log.Append(1, "hello there", base)
	log.Append(2, "multi\nline with a \\ backslash", base.Add(3*time.Second))
	log.Append(3, "Jordan (AI): looks like a tag but is text", base.Add(7*time.Second))
	log.Append(1, "", base.Add(9*time.Second))

	r.All()[1].Votes = 2
	r.All()[0].Votes = 1
	standings := voting.Tally(r.All())
	outcome := voting.Classify(standings, r.HumanID())
	return Build(r, log.Entries(), standings, outcome, "3f1c2a9e-0000-4000-8000-000000000000", base.Add(time.Minute)), log.Entries()
}

func TestRenderParseRoundTrip(t *testing.T) {
	rec, entries := sampleRecord(t)
	parsed, err := Parse(strings.NewReader(Render(rec)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Messages) != len(entries) {
		t.Fatalf("expected %d messages, got %d", len(entries), len(parsed.Messages))
	}
	for i, e := range entries {
		m := parsed.Messages[i]
		if m.Speaker != e.Speaker || m.Text != e.Text || !m.Time.Equal(e.Time) {
			t.Fatalf("message %d: expected (%d, %q, %s), got (%d, %q, %s)",
				i, e.Speaker, e.Text, e.Time, m.Speaker, m.Text, m.Time)
		}
	}
	if parsed.SessionID != rec.SessionID || parsed.HumanName != rec.HumanName || !parsed.Date.Equal(rec.Date) {
		t.Fatalf("expected header to survive, got %+v", parsed)
	}
	if parsed.Outcome != rec.Outcome {
		t.Fatalf("expected outcome %q, got %q", rec.Outcome, parsed.Outcome)
	}
	if len(parsed.Standings) != len(rec.Standings) || parsed.Standings[0].ID != rec.Standings[0].ID {
		t.Fatalf("expected standings to survive, got %+v", parsed.Standings)
	}
	for i, p := range rec.Participants {
		if parsed.Participants[i] != p {
			t.Fatalf("participant %d: expected %+v, got %+v", i, p, parsed.Participants[i])
		}
	}
}

func TestRenderTagsRoles(t *testing.T) {
	rec, _ := sampleRecord(t)
	out := Render(rec)
	if !strings.HasPrefix(out, "=== REVERSE TURING TEST GAME TRANSCRIPT ===\n") {
		t.Fatalf("expected title line, got %q", out[:40])
	}
	if !strings.Contains(out, rec.HumanName+" (HUMAN)\n") {
		t.Fatalf("expected human tag for %s", rec.HumanName)
	}
	if strings.Count(out, "(AI)\n") != 2 {
		t.Fatalf("expected two AI roster lines, got:\n%s", out)
	}
	if !strings.Contains(out, `multi\nline with a \\ backslash`) {
		t.Fatalf("expected escaped message text, got:\n%s", out)
	}
}

func TestParseRejectsUnknownSpeaker(t *testing.T) {
	input := strings.Join([]string{
		"=== PARTICIPANTS ===",
		"Alex (AI)",
		"",
		"=== CHAT HISTORY ===",
		"[2026-10-17T14:03:09Z] Morgan (AI): hi",
	}, "\n")
	if _, err := Parse(strings.NewReader(input)); err == nil {
		t.Fatalf("expected unknown speaker to fail")
	}
}

func TestSaveWritesTimestampedFile(t *testing.T) {
	rec, _ := sampleRecord(t)
	dir := t.TempDir()
	saver := NewSaver(dir, nil)
	path, err := saver.Save(context.Background(), rec)
	if err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	if filepath.Base(path) != "game_transcript_20261017_140409.txt" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(body) != Render(rec) {
		t.Fatalf("expected file to hold the rendered record")
	}

	second, err := saver.Save(context.Background(), rec)
	if err != nil {
		t.Fatalf("expected second save to succeed, got %v", err)
	}
	if second == path || !strings.HasSuffix(second, "_3f1c2a9e.txt") {
		t.Fatalf("expected collision to use session suffix, got %s", second)
	}
}

func TestSaveReportsExportError(t *testing.T) {
	rec, _ := sampleRecord(t)
	saver := NewSaver(filepath.Join(t.TempDir(), "missing", "dir"), nil)
	saver.MaxElapsed = 10 * time.Millisecond
	_, err := saver.Save(context.Background(), rec)
	var exportErr *ExportError
	if !errors.As(err, &exportErr) {
		t.Fatalf("expected ExportError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}
