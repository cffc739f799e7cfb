package transcript

import (
	"testing"
	"time"
)

func TestAppendAssignsIncreasingSequence(t *testing.T) {
	log := NewLog()
	at := time.Date(2026, 10, 17, 9, 30, 15, 500, time.UTC)
	first := log.Append(2, "hello", at)
	second := log.Append(1, "hi", at.Add(time.Second))
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", first.Seq, second.Seq)
	}
	if !first.Time.Equal(time.Date(2026, 10, 17, 9, 30, 15, 0, time.UTC)) {
		t.Fatalf("expected timestamp truncated to seconds, got %s", first.Time)
	}
	if log.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", log.Len())
	}
}

func TestRecentWindowReturnsChronologicalTail(t *testing.T) {
	log := NewLog()
	at := time.Now()
	for i := 1; i <= 5; i++ {
		log.Append(i, "m", at)
	}
	window := log.RecentWindow(3)
	if len(window) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(window))
	}
	if window[0].Seq != 3 || window[2].Seq != 5 {
		t.Fatalf("expected seq 3..5, got %d..%d", window[0].Seq, window[2].Seq)
	}
	if got := len(log.RecentWindow(10)); got != 5 {
		t.Fatalf("expected oversized window to return all, got %d", got)
	}
	if got := len(log.RecentWindow(0)); got != 5 {
		t.Fatalf("expected zero window to return all, got %d", got)
	}
}

func TestRecentWindowIsACopy(t *testing.T) {
	log := NewLog()
	log.Append(1, "original", time.Now())
	window := log.RecentWindow(1)
	window[0].Text = "changed"
	if log.Entries()[0].Text != "original" {
		t.Fatalf("expected log entries to be immutable through a window")
	}
}

func TestRender(t *testing.T) {
	at := time.Date(2026, 10, 17, 9, 30, 15, 0, time.UTC)
	entries := []Entry{
		{Seq: 1, Speaker: 1, Text: "hello", Time: at},
		{Seq: 2, Speaker: 9, Text: "ghost", Time: at},
		{Seq: 3, Speaker: 2, Text: "hey", Time: at},
	}
	names := map[int]string{1: "Ann", 2: "Bo"}

	plain := Render(entries, names, false)
	if plain != "Ann: hello\nBo: hey\n" {
		t.Fatalf("unexpected plain render %q", plain)
	}
	stamped := Render(entries, names, true)
	if stamped != "[09:30:15] Ann: hello\n[09:30:15] Bo: hey\n" {
		t.Fatalf("unexpected stamped render %q", stamped)
	}
}
