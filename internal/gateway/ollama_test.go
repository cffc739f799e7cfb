package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"reverseturing/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.Config{
		OllamaURL:      srv.URL + "/",
		Model:          "gemma3:12b",
		NumCtx:         2048,
		RequestTimeout: 5 * time.Second,
	}, nil)
}

func TestGenerateSendsPromptAndSeed(t *testing.T) {
	var got generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  I like long walks.  ","done":true}`))
	})

	text, err := client.Generate(context.Background(), Request{
		Speaker: "Kai",
		Others:  []string{"Sage", "Val"},
		Total:   3,
		Seed:    42,
		Context: "Sage: hi",
		Task:    TaskContinue,
		MaxLen:  150,
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if text != "I like long walks." {
		t.Fatalf("expected trimmed reply, got %q", text)
	}
	if got.Stream {
		t.Fatalf("expected non-streaming request")
	}
	if got.Model != "gemma3:12b" {
		t.Fatalf("unexpected model %q", got.Model)
	}
	if seed, ok := got.Options["seed"].(float64); !ok || int64(seed) != 42 {
		t.Fatalf("expected seed option 42, got %v", got.Options["seed"])
	}
	if !strings.Contains(got.Prompt, "You are Kai") || !strings.Contains(got.Prompt, "Sage, Val") {
		t.Fatalf("expected persona preamble in prompt, got %q", got.Prompt)
	}
	if !strings.Contains(got.Prompt, "Chat history:\nSage: hi") {
		t.Fatalf("expected chat history in prompt, got %q", got.Prompt)
	}
}

func TestGenerateTruncatesLongReplies(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"abcdefghij"}`))
	})
	text, err := client.Generate(context.Background(), Request{Speaker: "Kai", MaxLen: 4})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if text != "abcd"+TruncationMarker {
		t.Fatalf("expected truncated reply, got %q", text)
	}
}

func TestGenerateMapsStatusToGenerationError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})
	_, err := client.Generate(context.Background(), Request{Speaker: "Kai"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Code != "model_missing" {
		t.Fatalf("expected model_missing, got %q", genErr.Code)
	}
	if !strings.HasPrefix(Placeholder(err), "[Error generating response:") {
		t.Fatalf("unexpected placeholder %q", Placeholder(err))
	}
}

func TestPlaceholderKeepsMultibyteBodyValid(t *testing.T) {
	for _, err := range []error{
		newGenerationError(strings.Repeat("é", 300), nil),
		errors.New(strings.Repeat("日本", 200)),
	} {
		text := Placeholder(err)
		if !utf8.ValidString(text) {
			t.Fatalf("expected valid UTF-8 placeholder, got %q", text)
		}
		if !strings.HasSuffix(text, "...]") {
			t.Fatalf("expected long detail to be cut, got %q", text)
		}
	}
	if got := compactSingleLine("ééééé", 4); got != "é..." {
		t.Fatalf("expected rune-based cut, got %q", got)
	}
}

func TestGenerateMapsTransportFailure(t *testing.T) {
	client := NewClient(&config.Config{
		OllamaURL:      "http://127.0.0.1:1",
		Model:          "m",
		RequestTimeout: time.Second,
	}, nil)
	_, err := client.Generate(context.Background(), Request{Speaker: "Kai"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Code != "endpoint_unreachable" {
		t.Fatalf("expected endpoint_unreachable, got %q (%s)", genErr.Code, genErr.Detail)
	}
}

func TestGenerateRejectsEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"   "}`))
	})
	_, err := client.Generate(context.Background(), Request{Speaker: "Kai"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Code != "empty_response" {
		t.Fatalf("expected empty_response GenerationError, got %v", err)
	}
}

func TestPreflightAcceptsBaseModelName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"gemma3"},{"name":"llama3:8b"}]}`))
	})
	if err := client.Preflight(context.Background()); err != nil {
		t.Fatalf("expected base model name to satisfy preflight, got %v", err)
	}
}

func TestPreflightReportsMissingModel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b"}]}`))
	})
	err := client.Preflight(context.Background())
	if !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected ErrModelMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "ollama pull gemma3:12b") {
		t.Fatalf("expected install hint, got %v", err)
	}
}

func TestPreflightReportsUnavailableBackend(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := client.Preflight(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("expected untouched text, got %q", got)
	}
	if got := Truncate("exact", 5); got != "exact" {
		t.Fatalf("expected text at the cap to be untouched, got %q", got)
	}
	if got := Truncate("héllo wörld", 5); got != "héllo..." {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
}

func TestPersonaMentionsOthersAndPersonality(t *testing.T) {
	persona := Persona(Request{
		Speaker:     "Kai",
		Others:      []string{"Ann", "Bo"},
		Total:       3,
		Personality: "You are curious.",
		MaxLen:      120,
	})
	for _, want := range []string{"You are Kai", "3 participants", "Ann, Bo", "You are curious.", "under 120 characters"} {
		if !strings.Contains(persona, want) {
			t.Fatalf("expected persona to contain %q, got %q", want, persona)
		}
	}
}
