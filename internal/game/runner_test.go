package game

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"reverseturing/internal/export"
	"reverseturing/internal/gateway"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	reply func(req gateway.Request) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req gateway.Request) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.reply != nil {
		return g.reply(req)
	}
	return req.Speaker + " here, nothing to report.", nil
}

type scriptedInput struct {
	lines   []string
	votes   []string
	prompts []AwaitHuman
}

func (in *scriptedInput) ReadLine(ctx context.Context, prompt AwaitHuman) (string, error) {
	in.prompts = append(in.prompts, prompt)
	queue, fallback := &in.lines, "still here"
	if prompt.Kind == InputVote {
		queue, fallback = &in.votes, "1"
	}
	if len(*queue) == 0 {
		return fallback, nil
	}
	line := (*queue)[0]
	*queue = (*queue)[1:]
	return line, nil
}

type memorySaver struct {
	mu      sync.Mutex
	records []export.Record
	err     error
}

func (m *memorySaver) Save(ctx context.Context, rec export.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.records = append(m.records, rec)
	return "memory://" + rec.SessionID, nil
}

func newRunner(t *testing.T, seed int64, input HumanInput, saver Saver) (*Runner, *[]Event) {
	t.Helper()
	cfg := testConfig()
	cfg.MaxTurns = 6
	clock := &fakeClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	s, err := NewScheduler(Options{Config: cfg, Rand: rand.New(rand.NewSource(seed)), Clock: clock.Now})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	var events []Event
	return &Runner{
		Scheduler: s,
		Generator: &fakeGenerator{},
		Input:     input,
		Saver:     saver,
		Present:   func(e Event) { events = append(events, e) },
		Sleep: func(ctx context.Context, d time.Duration) error {
			clock.Advance(d)
			return nil
		},
	}, &events
}

func TestRunnerPlaysFullGame(t *testing.T) {
	input := &scriptedInput{lines: []string{"Hi, I'm an assistant model."}}
	saver := &memorySaver{}
	runner, events := newRunner(t, 21, input, saver)

	res, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("expected game to finish, got %v", err)
	}
	if res.Outcome == "" || len(res.Standings) != 4 {
		t.Fatalf("expected scored result, got %+v", res)
	}
	if len(saver.records) != 1 || res.TranscriptPath != "memory://"+res.SessionID {
		t.Fatalf("expected one saved record, got %d (%q)", len(saver.records), res.TranscriptPath)
	}
	if input.prompts[0].Kind != InputIntroduction {
		t.Fatalf("expected introduction prompt first, got %s", input.prompts[0].Kind)
	}
	var outcome bool
	for _, e := range *events {
		if _, ok := e.(OutcomeDecided); ok {
			outcome = true
		}
	}
	if !outcome {
		t.Fatalf("expected outcome event to be presented")
	}
}

func TestRunnerRepromptsInvalidVote(t *testing.T) {
	input := &scriptedInput{
		lines: []string{"", "hello"},
		votes: []string{"abc", "9", "2"},
	}
	runner, events := newRunner(t, 22, input, &memorySaver{})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	var notices []string
	for _, e := range *events {
		if n, ok := e.(Notice); ok {
			notices = append(notices, n.Text)
		}
	}
	joined := strings.Join(notices, "|")
	if !strings.Contains(joined, "message is empty") {
		t.Fatalf("expected empty message to be reprompted, got %v", notices)
	}
	votePrompts := 0
	for _, p := range input.prompts {
		if p.Kind == InputVote {
			votePrompts++
		}
	}
	if votePrompts != 3 {
		t.Fatalf("expected two rejected votes and one accepted, got %d vote prompts", votePrompts)
	}
	if !strings.Contains(joined, "Please enter a valid number.") || !strings.Contains(joined, "between 1 and 3") {
		t.Fatalf("expected vote errors to be presented, got %v", notices)
	}
}

func TestRunnerReportsExportFailure(t *testing.T) {
	saver := &memorySaver{err: &export.ExportError{Path: "/nope", Err: errors.New("read-only file system")}}
	runner, _ := newRunner(t, 23, &scriptedInput{}, saver)
	res, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("export failure must not fail the game, got %v", err)
	}
	if res.ExportError == "" || res.Outcome == "" {
		t.Fatalf("expected outcome kept and export error recorded, got %+v", res)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner, _ := newRunner(t, 24, &scriptedInput{}, &memorySaver{})
	runner.Generator = &fakeGenerator{reply: func(req gateway.Request) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	if _, err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestChoiceID(t *testing.T) {
	choices := []Choice{{ID: 2, Name: "B"}, {ID: 4, Name: "D"}}
	if id, err := ChoiceID(choices, " 2 "); err != nil || id != 4 {
		t.Fatalf("expected id 4, got %d (%v)", id, err)
	}
	var rejected *InputRejected
	for _, in := range []string{"0", "3", "two", ""} {
		if _, err := ChoiceID(choices, in); !errors.As(err, &rejected) {
			t.Fatalf("expected %q rejected, got %v", in, err)
		}
	}
}
