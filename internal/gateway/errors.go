package gateway

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	ErrModelMissing       = errors.New("model not installed on backend")
)

// GenerationError is a failed backend call. The scheduler substitutes it inline
// and moves on; it never changes phase.
type GenerationError struct {
	Code   string
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %s", e.Code, e.Detail)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func newGenerationError(detail string, err error) *GenerationError {
	return &GenerationError{Code: classify(detail), Detail: compactSingleLine(detail, 240), Err: err}
}

func classify(errText string) string {
	normalized := strings.ToLower(strings.TrimSpace(errText))
	switch {
	case strings.Contains(normalized, "context deadline exceeded"), strings.Contains(normalized, "timed out"), strings.Contains(normalized, "timeout"):
		return "timeout"
	case strings.Contains(normalized, "connection refused"), strings.Contains(normalized, "dial tcp"), strings.Contains(normalized, "no such host"):
		return "endpoint_unreachable"
	case strings.Contains(normalized, "http 404"), strings.Contains(normalized, "model not found"), strings.Contains(normalized, "ollama pull"):
		return "model_missing"
	case strings.Contains(normalized, "connection reset"), strings.Contains(normalized, "eof"):
		return "transport_transient"
	case strings.Contains(normalized, "empty response"):
		return "empty_response"
	default:
		return "unknown"
	}
}

// Placeholder is the visible chat text that stands in for a failed generation.
func Placeholder(err error) string {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return fmt.Sprintf("[Error generating response: %s]", genErr.Detail)
	}
	return fmt.Sprintf("[Error: %s]", compactSingleLine(err.Error(), 240))
}

// compactSingleLine limits by runes so a cut never splits a character.
func compactSingleLine(text string, limit int) string {
	compact := []rune(strings.Join(strings.Fields(text), " "))
	if limit <= 0 || len(compact) <= limit {
		return string(compact)
	}
	if limit <= 3 {
		return string(compact[:limit])
	}
	return string(compact[:limit-3]) + "..."
}
