package game

import (
	"fmt"
	"time"

	"reverseturing/internal/export"
	"reverseturing/internal/gateway"
	"reverseturing/internal/transcript"
	"reverseturing/internal/voting"
)

// Action is what Next asks the driver to do before the game can move on.
type Action interface {
	action()
}

// Generate asks the driver to run one backend call and Deliver the result
// under the same ticket. Request is a snapshot and safe to use off-goroutine.
type Generate struct {
	Ticket  int
	Purpose Purpose
	Speaker int
	Request gateway.Request
}

// AwaitHuman parks the game until the matching Submit call.
type AwaitHuman struct {
	Kind    InputKind
	Prompt  string
	Asker   string // set when the human is answering a question
	Choices []Choice
}

// Pause asks for a delay before the next scheduling decision, then Resume.
type Pause struct {
	Delay time.Duration
}

// Export asks the driver to persist the record and report back with Exported.
type Export struct {
	Record export.Record
}

// Finished carries the result once the game is terminal.
type Finished struct {
	Result Result
}

func (Generate) action()   {}
func (AwaitHuman) action() {}
func (Pause) action()      {}
func (Export) action()     {}
func (Finished) action()   {}

// Completion is a generation result coming back from a worker.
type Completion struct {
	Ticket int
	Text   string
	Err    error
}

// Choice is one participant the human may vote for.
type Choice struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Result is the scored outcome of a finished game.
type Result struct {
	SessionID      string            `json:"session_id"`
	HumanID        int               `json:"human_id"`
	Standings      []voting.Standing `json:"standings"`
	Outcome        voting.Outcome    `json:"outcome"`
	TranscriptPath string            `json:"transcript_path,omitempty"`
	ExportError    string            `json:"export_error,omitempty"`
}

// Event is a presentation-level change drained with Events.
type Event interface {
	event()
}

type MessageAdded struct {
	Entry   transcript.Entry
	Name    string
	Human   bool
	Purpose Purpose
	// Addressed is set when a generated participant named the human.
	Addressed bool
	Failed    bool
}

type PhaseChanged struct {
	From Phase
	To   Phase
}

type Notice struct {
	Text string
}

type VoteCast struct {
	Voter      int
	VoterName  string
	Target     int
	TargetName string
	Reasoning  string
	// Random is set when no name was found in the reasoning.
	Random bool
}

type OutcomeDecided struct {
	Result Result
}

func (MessageAdded) event()   {}
func (PhaseChanged) event()   {}
func (Notice) event()         {}
func (VoteCast) event()       {}
func (OutcomeDecided) event() {}

// Summary is the closing text for the human: the outcome, and who took the
// most votes when it was not them.
func (r Result) Summary() []string {
	lines := []string{r.Outcome.Message()}
	if r.Outcome != voting.OutcomeUndetected {
		return lines
	}
	for _, w := range voting.Winners(r.Standings) {
		lines = append(lines, fmt.Sprintf("%s (AI) received the most votes.", w.Name))
	}
	return lines
}
