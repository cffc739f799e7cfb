package game

import "time"

type ParticipantView struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Human bool   `json:"human"`
	Votes int    `json:"votes"`
}

type MessageView struct {
	Seq     int       `json:"seq"`
	Speaker int       `json:"speaker"`
	Name    string    `json:"name"`
	Text    string    `json:"text"`
	Time    time.Time `json:"time"`
}

// Snapshot is a copy of the visible game, safe to hand to other goroutines.
type Snapshot struct {
	SessionID        string            `json:"session_id"`
	Phase            Phase             `json:"phase"`
	Turn             int               `json:"turn"`
	MaxTurns         int               `json:"max_turns"`
	RemainingSeconds int               `json:"remaining_seconds"`
	You              int               `json:"you"`
	Participants     []ParticipantView `json:"participants"`
	Messages         []MessageView     `json:"messages"`
	Awaiting         InputKind         `json:"awaiting"`
	WaitSeq          int               `json:"wait_seq"`
	Prompt           string            `json:"prompt,omitempty"`
	Choices          []Choice          `json:"choices,omitempty"`
	Result           *Result           `json:"result,omitempty"`
}

func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:        s.sessionID,
		Phase:            s.state.Phase,
		Turn:             s.state.Turn,
		MaxTurns:         s.cfg.MaxTurns,
		RemainingSeconds: int(s.Remaining() / time.Second),
		You:              s.roster.HumanID(),
	}
	for _, p := range s.roster.All() {
		snap.Participants = append(snap.Participants, ParticipantView{ID: p.ID, Name: p.Name, Human: p.IsHuman(), Votes: p.Votes})
	}
	for _, e := range s.log.Entries() {
		snap.Messages = append(snap.Messages, MessageView{Seq: e.Seq, Speaker: e.Speaker, Name: s.names[e.Speaker], Text: e.Text, Time: e.Time})
	}
	if a, ok := s.Awaiting(); ok {
		snap.Awaiting = a.Kind
		snap.WaitSeq = s.waits
		snap.Prompt = a.Prompt
		snap.Choices = append([]Choice(nil), a.Choices...)
	}
	if res, ok := s.Result(); ok {
		res.Standings = append(res.Standings[:0:0], res.Standings...)
		snap.Result = &res
	}
	return snap
}
