package web

import (
	"strings"
	"time"

	"reverseturing/internal/game"
)

// envelope is the websocket frame for every server -> client message.
type envelope struct {
	Type string `json:"type"`

	// message
	Seq       int        `json:"seq,omitempty"`
	Speaker   int        `json:"speaker,omitempty"`
	Name      string     `json:"name,omitempty"`
	Text      string     `json:"text,omitempty"`
	Time      *time.Time `json:"time,omitempty"`
	Addressed bool       `json:"addressed,omitempty"`

	// phase
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// vote
	Voter      string `json:"voter,omitempty"`
	Target     string `json:"target,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
	RandomPick bool   `json:"random_pick,omitempty"`

	// waiting / timer
	Awaiting         game.InputKind `json:"awaiting,omitempty"`
	Choices          []game.Choice  `json:"choices,omitempty"`
	RemainingSeconds *int           `json:"remaining_seconds,omitempty"`

	Result *game.Result `json:"result,omitempty"`
}

func toEnvelope(e game.Event) (envelope, bool) {
	switch ev := e.(type) {
	case game.MessageAdded:
		at := ev.Entry.Time
		return envelope{
			Type:      "message",
			Seq:       ev.Entry.Seq,
			Speaker:   ev.Entry.Speaker,
			Name:      ev.Name,
			Text:      ev.Entry.Text,
			Time:      &at,
			Addressed: ev.Addressed,
		}, true
	case game.PhaseChanged:
		return envelope{Type: "phase", From: ev.From.String(), To: ev.To.String()}, true
	case game.Notice:
		return envelope{Type: "notice", Text: ev.Text}, true
	case game.VoteCast:
		return envelope{
			Type:       "vote",
			Voter:      ev.VoterName,
			Target:     ev.TargetName,
			Reasoning:  ev.Reasoning,
			RandomPick: ev.Random,
		}, true
	case game.OutcomeDecided:
		res := ev.Result
		return envelope{Type: "results", Text: resultText(res), Result: &res}, true
	default:
		return envelope{}, false
	}
}

func resultText(res game.Result) string {
	return strings.Join(res.Summary(), " ")
}
