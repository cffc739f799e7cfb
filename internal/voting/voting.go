package voting

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"reverseturing/internal/roster"
)

// Outcome is the verdict on the human after the tally.
type Outcome string

const (
	OutcomeCaught     Outcome = "caught"
	OutcomeTie        Outcome = "tie, suspected"
	OutcomeUndetected Outcome = "success, undetected"
)

// Message is the closing line shown to the human for an outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeCaught:
		return "You were identified as the human! The AI models successfully detected you."
	case OutcomeTie:
		return "There was a tie in the voting. You were among those suspected to be human."
	default:
		return "Success! You weren't identified as the human! You successfully convinced the AI models that you're an AI."
	}
}

var ErrAlreadyVoted = errors.New("participant has already voted")

// Ballot records at most one vote per voter.
type Ballot struct {
	votes map[int]int
}

func NewBallot() *Ballot {
	return &Ballot{votes: map[int]int{}}
}

// Cast records voter -> target once. Self votes are rejected.
func (b *Ballot) Cast(voter, target int) error {
	if _, ok := b.votes[voter]; ok {
		return fmt.Errorf("%w: voter %d", ErrAlreadyVoted, voter)
	}
	if voter == target {
		return fmt.Errorf("participant %d cannot vote for themselves", voter)
	}
	b.votes[voter] = target
	return nil
}

func (b *Ballot) Has(voter int) bool {
	_, ok := b.votes[voter]
	return ok
}

func (b *Ballot) Len() int {
	return len(b.votes)
}

// Standing is one row of the tally.
type Standing struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Human bool   `json:"human"`
	Votes int    `json:"votes"`
}

// Tally sorts participants by votes received, highest first, ties in id order.
func Tally(participants []*roster.Participant) []Standing {
	out := make([]Standing, 0, len(participants))
	for _, p := range participants {
		out = append(out, Standing{ID: p.ID, Name: p.Name, Human: p.IsHuman(), Votes: p.Votes})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Winners is every standing tied for the most votes. Input must be sorted.
func Winners(sorted []Standing) []Standing {
	if len(sorted) == 0 {
		return nil
	}
	top := sorted[0].Votes
	end := 0
	for end < len(sorted) && sorted[end].Votes == top {
		end++
	}
	return sorted[:end]
}

// Classify decides the outcome from a sorted tally and the human's id.
func Classify(sorted []Standing, humanID int) Outcome {
	winners := Winners(sorted)
	for _, w := range winners {
		if w.ID == humanID {
			if len(winners) == 1 {
				return OutcomeCaught
			}
			return OutcomeTie
		}
	}
	return OutcomeUndetected
}

// ExtractVote finds whom a generated voter named. The first participant in id
// order, other than the voter, whose exact name occurs in the response wins.
// With no match a uniformly random other participant is chosen. The bool
// reports whether the choice came from the text.
func ExtractVote(response string, voter int, participants []*roster.Participant, rng *rand.Rand) (*roster.Participant, bool) {
	others := make([]*roster.Participant, 0, len(participants))
	for _, p := range participants {
		if p.ID == voter {
			continue
		}
		if p.Name != "" && strings.Contains(response, p.Name) {
			return p, true
		}
		others = append(others, p)
	}
	if len(others) == 0 {
		return nil, false
	}
	return others[rng.Intn(len(others))], false
}
