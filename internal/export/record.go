package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"reverseturing/internal/roster"
	"reverseturing/internal/transcript"
	"reverseturing/internal/voting"
)

const (
	headerTitle        = "=== REVERSE TURING TEST GAME TRANSCRIPT ==="
	headerParticipants = "=== PARTICIPANTS ==="
	headerChat         = "=== CHAT HISTORY ==="
	headerVotes        = "=== VOTING RESULTS ==="
	headerOutcome      = "=== OUTCOME ==="

	tagHuman = "HUMAN"
	tagAI    = "AI"
)

type Participant struct {
	ID    int
	Name  string
	Human bool
	Votes int
}

func (p Participant) tag() string {
	if p.Human {
		return tagHuman
	}
	return tagAI
}

type Message struct {
	Seq     int
	Speaker int
	Name    string
	Human   bool
	Text    string
	Time    time.Time
}

// Record is the finished session as it is written to disk.
type Record struct {
	SessionID    string
	Date         time.Time
	HumanName    string
	Participants []Participant
	Messages     []Message
	Standings    []voting.Standing
	Outcome      voting.Outcome
}

// Build snapshots a finished session. Nothing in the record aliases the roster
// or the log, so it may be handed to another goroutine for writing.
func Build(r *roster.Roster, entries []transcript.Entry, standings []voting.Standing, outcome voting.Outcome, sessionID string, at time.Time) Record {
	rec := Record{
		SessionID: sessionID,
		Date:      at.Truncate(time.Second),
		HumanName: r.Human().Name,
		Outcome:   outcome,
		Standings: append([]voting.Standing(nil), standings...),
	}
	for _, p := range r.All() {
		rec.Participants = append(rec.Participants, Participant{ID: p.ID, Name: p.Name, Human: p.IsHuman(), Votes: p.Votes})
	}
	for _, e := range entries {
		p, ok := r.Get(e.Speaker)
		if !ok {
			continue
		}
		rec.Messages = append(rec.Messages, Message{
			Seq:     e.Seq,
			Speaker: e.Speaker,
			Name:    p.Name,
			Human:   p.IsHuman(),
			Text:    e.Text,
			Time:    e.Time,
		})
	}
	return rec
}

// Render writes the plain-text form. Message text is escaped so that every
// chat entry stays on one line.
func Render(rec Record) string {
	var b strings.Builder
	fmt.Fprintln(&b, headerTitle)
	fmt.Fprintf(&b, "Date: %s\n", rec.Date.Format(time.RFC3339))
	fmt.Fprintf(&b, "Session: %s\n", rec.SessionID)
	fmt.Fprintf(&b, "Human participant: %s\n", rec.HumanName)

	fmt.Fprintf(&b, "\n%s\n", headerParticipants)
	for _, p := range rec.Participants {
		fmt.Fprintf(&b, "%s (%s)\n", p.Name, p.tag())
	}

	fmt.Fprintf(&b, "\n%s\n", headerChat)
	for _, m := range rec.Messages {
		tag := tagAI
		if m.Human {
			tag = tagHuman
		}
		fmt.Fprintf(&b, "[%s] %s (%s): %s\n", m.Time.Format(time.RFC3339), m.Name, tag, escape(m.Text))
	}

	fmt.Fprintf(&b, "\n%s\n", headerVotes)
	for _, s := range rec.Standings {
		tag := tagAI
		if s.Human {
			tag = tagHuman
		}
		fmt.Fprintf(&b, "%s (%s): %d votes\n", s.Name, tag, s.Votes)
	}

	fmt.Fprintf(&b, "\n%s\n%s\n", headerOutcome, rec.Outcome)
	return b.String()
}

// Parse reads back what Render wrote.
func Parse(r io.Reader) (Record, error) {
	var rec Record
	byName := map[string]Participant{}
	section := ""
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasPrefix(line, "=== ") && strings.HasSuffix(line, " ===") {
			section = line
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch section {
		case headerTitle:
			key, value, ok := strings.Cut(line, ": ")
			if !ok {
				return rec, fmt.Errorf("line %d: malformed header %q", lineNo, line)
			}
			switch key {
			case "Date":
				at, err := time.Parse(time.RFC3339, value)
				if err != nil {
					return rec, fmt.Errorf("line %d: %w", lineNo, err)
				}
				rec.Date = at
			case "Session":
				rec.SessionID = value
			case "Human participant":
				rec.HumanName = value
			}
		case headerParticipants:
			name, tag, err := splitTagged(line)
			if err != nil {
				return rec, fmt.Errorf("line %d: %w", lineNo, err)
			}
			p := Participant{ID: len(rec.Participants) + 1, Name: name, Human: tag == tagHuman}
			rec.Participants = append(rec.Participants, p)
			byName[name] = p
		case headerChat:
			m, err := parseMessage(line, byName)
			if err != nil {
				return rec, fmt.Errorf("line %d: %w", lineNo, err)
			}
			m.Seq = len(rec.Messages) + 1
			rec.Messages = append(rec.Messages, m)
		case headerVotes:
			s, err := parseStanding(line, byName)
			if err != nil {
				return rec, fmt.Errorf("line %d: %w", lineNo, err)
			}
			rec.Standings = append(rec.Standings, s)
			rec.Participants[s.ID-1].Votes = s.Votes
		case headerOutcome:
			rec.Outcome = voting.Outcome(line)
		default:
			return rec, fmt.Errorf("line %d: content outside any section", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return rec, err
	}
	return rec, nil
}

// splitTagged splits "Name (TAG)" and the "Name (TAG): rest" prefix forms.
func splitTagged(text string) (string, string, error) {
	open := strings.LastIndex(text, " (")
	if open < 0 || !strings.HasSuffix(text, ")") {
		return "", "", fmt.Errorf("missing role tag in %q", text)
	}
	tag := text[open+2 : len(text)-1]
	if tag != tagHuman && tag != tagAI {
		return "", "", fmt.Errorf("unknown role tag %q", tag)
	}
	return text[:open], tag, nil
}

func parseMessage(line string, byName map[string]Participant) (Message, error) {
	if !strings.HasPrefix(line, "[") {
		return Message{}, fmt.Errorf("missing timestamp in %q", line)
	}
	stamp, rest, ok := strings.Cut(line[1:], "] ")
	if !ok {
		return Message{}, fmt.Errorf("unterminated timestamp in %q", line)
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return Message{}, err
	}
	cut := firstIndex(rest, " ("+tagHuman+"): ", " ("+tagAI+"): ")
	if cut < 0 {
		return Message{}, fmt.Errorf("missing speaker in %q", line)
	}
	end := strings.Index(rest[cut:], "): ") + cut
	name, tag, err := splitTagged(rest[:end+1])
	if err != nil {
		return Message{}, err
	}
	p, ok := byName[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown speaker %q", name)
	}
	text, err := unescape(rest[end+3:])
	if err != nil {
		return Message{}, err
	}
	return Message{Speaker: p.ID, Name: name, Human: tag == tagHuman, Text: text, Time: at}, nil
}

func parseStanding(line string, byName map[string]Participant) (voting.Standing, error) {
	head, count, ok := strings.Cut(line, "): ")
	if !ok {
		return voting.Standing{}, fmt.Errorf("malformed vote line %q", line)
	}
	name, tag, err := splitTagged(head + ")")
	if err != nil {
		return voting.Standing{}, err
	}
	p, ok := byName[name]
	if !ok {
		return voting.Standing{}, fmt.Errorf("unknown participant %q", name)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(count, " votes"))
	if err != nil {
		return voting.Standing{}, fmt.Errorf("bad vote count in %q", line)
	}
	return voting.Standing{ID: p.ID, Name: name, Human: tag == tagHuman, Votes: n}, nil
}

func firstIndex(s string, seps ...string) int {
	best := -1
	for _, sep := range seps {
		if i := strings.Index(s, sep); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

var escaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func escape(text string) string {
	return escaper.Replace(text)
}

func unescape(text string) (string, error) {
	if !strings.Contains(text, `\`) {
		return text, nil
	}
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] != '\\' {
			b.WriteByte(text[i])
			continue
		}
		if i+1 >= len(text) {
			return "", fmt.Errorf("dangling escape in %q", text)
		}
		i++
		switch text[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", fmt.Errorf("unknown escape \\%c", text[i])
		}
	}
	return b.String(), nil
}
