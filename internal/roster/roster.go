package roster

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"reverseturing/internal/config"
)

// Role separates the one human from the generated participants.
type Role string

const (
	RoleHuman     Role = "human"
	RoleGenerated Role = "generated"
)

// Personalities are participant-stable style tags handed to the model.
var Personalities = []string{
	"You are analytical and logical in your responses.",
	"You are friendly and empathetic in your communication style.",
	"You are curious and inquisitive, often asking thoughtful questions.",
	"You are straightforward and concise in your messages.",
	"You are slightly humorous but still professional.",
}

// Participant is one seat at the table. Votes and Messages are written only by
// the goroutine that owns the game.
type Participant struct {
	ID          int
	Name        string
	Role        Role
	Votes       int
	Messages    []int // transcript sequence numbers authored by this participant
	Personality string
	Seed        int64
}

func (p *Participant) IsHuman() bool {
	return p.Role == RoleHuman
}

func (p *Participant) String() string {
	return p.Name
}

// Roster is the fixed set of participants for one session, ids 1..N.
type Roster struct {
	participants []*Participant
	humanID      int
}

// Setup picks the human seat and names everyone. It fails before any turn logic
// runs when the parameters cannot produce a valid table.
func Setup(total int, pool []string, useRandomNames bool, rng *rand.Rand) (*Roster, error) {
	if total < 2 {
		return nil, &config.ConfigurationError{
			Field:  "TotalParticipants",
			Reason: fmt.Sprintf("need at least 2 participants, got %d", total),
		}
	}
	var names []string
	if useRandomNames {
		if len(pool) < total {
			return nil, &config.ConfigurationError{
				Field:  "NamePool",
				Reason: fmt.Sprintf("%d names cannot cover %d participants", len(pool), total),
			}
		}
		shuffled := append([]string(nil), pool...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		names = shuffled[:total]
		if dup, ok := firstDuplicate(names); ok {
			return nil, &config.ConfigurationError{
				Field:  "NamePool",
				Reason: fmt.Sprintf("duplicate name %q", dup),
			}
		}
	}

	humanID := rng.Intn(total) + 1
	r := &Roster{participants: make([]*Participant, 0, total), humanID: humanID}
	for id := 1; id <= total; id++ {
		p := &Participant{ID: id, Role: RoleGenerated}
		if id == humanID {
			p.Role = RoleHuman
		}
		if useRandomNames {
			p.Name = names[id-1]
		} else {
			p.Name = fmt.Sprintf("Participant %d", id)
		}
		if !p.IsHuman() {
			p.Seed = SeedFor(id)
			p.Personality = Personalities[p.Seed%int64(len(Personalities))]
		}
		r.participants = append(r.participants, p)
	}
	return r, nil
}

// SeedFor derives a deterministic model seed from a participant id.
func SeedFor(id int) int64 {
	h := fnv.New32a()
	fmt.Fprintf(h, "participant-%d", id)
	return int64(h.Sum32() & 0x7fffffff)
}

func firstDuplicate(names []string) (string, bool) {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return name, true
		}
		seen[name] = struct{}{}
	}
	return "", false
}

// All returns participants in id order. The slice is shared; do not reorder it.
func (r *Roster) All() []*Participant {
	return r.participants
}

func (r *Roster) Len() int {
	return len(r.participants)
}

func (r *Roster) Get(id int) (*Participant, bool) {
	if id < 1 || id > len(r.participants) {
		return nil, false
	}
	return r.participants[id-1], true
}

func (r *Roster) Human() *Participant {
	return r.participants[r.humanID-1]
}

func (r *Roster) HumanID() int {
	return r.humanID
}

// Others lists everyone except id, in id order.
func (r *Roster) Others(id int) []*Participant {
	out := make([]*Participant, 0, len(r.participants)-1)
	for _, p := range r.participants {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func (r *Roster) Generated() []*Participant {
	return r.Others(r.humanID)
}

// Names maps id to display name, for rendering transcripts off the roster.
func (r *Roster) Names() map[int]string {
	out := make(map[int]string, len(r.participants))
	for _, p := range r.participants {
		out[p.ID] = p.Name
	}
	return out
}
