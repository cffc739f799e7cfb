package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Entry is one appended chat line. Entries are never mutated after Append.
type Entry struct {
	Seq     int
	Speaker int
	Text    string
	Time    time.Time
}

// Log is the append-only, ordered record of a session. It is not safe for
// concurrent writers; the game goroutine is its only writer.
type Log struct {
	entries []Entry
}

func NewLog() *Log {
	return &Log{entries: make([]Entry, 0, 64)}
}

// Append stamps and stores a message. Timestamps keep whole-second precision,
// which is what the exported record carries.
func (l *Log) Append(speaker int, text string, at time.Time) Entry {
	entry := Entry{
		Seq:     len(l.entries) + 1,
		Speaker: speaker,
		Text:    text,
		Time:    at.Truncate(time.Second),
	}
	l.entries = append(l.entries, entry)
	return entry
}

func (l *Log) Len() int {
	return len(l.entries)
}

// RecentWindow copies the last n entries in chronological order; n <= 0 copies all.
func (l *Log) RecentWindow(n int) []Entry {
	start := 0
	if n > 0 && len(l.entries) > n {
		start = len(l.entries) - n
	}
	out := make([]Entry, len(l.entries[start:]))
	copy(out, l.entries[start:])
	return out
}

func (l *Log) Entries() []Entry {
	return l.RecentWindow(0)
}

// Render joins entries as prompt context lines. Entries whose speaker has no
// name are skipped.
func Render(entries []Entry, names map[int]string, showTimestamps bool) string {
	var b strings.Builder
	for _, entry := range entries {
		name, ok := names[entry.Speaker]
		if !ok {
			continue
		}
		if showTimestamps {
			fmt.Fprintf(&b, "[%s] %s: %s\n", entry.Time.Format("15:04:05"), name, entry.Text)
		} else {
			fmt.Fprintf(&b, "%s: %s\n", name, entry.Text)
		}
	}
	return b.String()
}
