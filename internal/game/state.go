package game

import (
	"errors"
	"fmt"
	"time"
)

// Phase only moves forward.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseIntroduction
	PhaseDiscussion
	PhaseVoting
	PhaseResults
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseIntroduction:
		return "intro"
	case PhaseDiscussion:
		return "discussion"
	case PhaseVoting:
		return "voting"
	case PhaseResults:
		return "results"
	case PhaseTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the scheduler's public game state.
type State struct {
	Phase     Phase
	Turn      int
	StartedAt time.Time
	Deadline  time.Time
	Terminal  bool
}

// InputKind names the awaiting-human sub-state, if any.
type InputKind int

const (
	InputNone InputKind = iota
	InputIntroduction
	InputTurn
	InputVote
)

func (k InputKind) String() string {
	switch k {
	case InputIntroduction:
		return "introduction"
	case InputTurn:
		return "message"
	case InputVote:
		return "vote"
	default:
		return "none"
	}
}

func (k InputKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Purpose says what a generated message is for.
type Purpose int

const (
	PurposeIntroduction Purpose = iota
	PurposeTurn
	PurposeQuestion
	PurposeReply
	PurposeVote
)

func (p Purpose) String() string {
	switch p {
	case PurposeIntroduction:
		return "introduction"
	case PurposeTurn:
		return "turn"
	case PurposeQuestion:
		return "question"
	case PurposeReply:
		return "reply"
	case PurposeVote:
		return "vote"
	default:
		return "unknown"
	}
}

var (
	// ErrStepPending is returned by Next while an earlier action is unresolved.
	ErrStepPending = errors.New("previous action still pending")
	// ErrUnexpectedCompletion is returned for a completion nobody is waiting on.
	ErrUnexpectedCompletion = errors.New("no generation pending for this ticket")
)

// InputRejected is human input that arrived outside the matching sub-state, or
// that could not be accepted. The game state is unchanged.
type InputRejected struct {
	Input  InputKind
	Phase  Phase
	Reason string
}

func (e *InputRejected) Error() string {
	return fmt.Sprintf("%s rejected during %s: %s", e.Input, e.Phase, e.Reason)
}
