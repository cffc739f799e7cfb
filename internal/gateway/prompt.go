package gateway

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to replies cut at the length cap.
const TruncationMarker = "..."

// Request is everything the gateway needs to voice one participant. It is built
// on the game goroutine and never shared mutably, so workers may read it freely.
type Request struct {
	Speaker     string
	Others      []string
	Total       int
	Personality string
	Seed        int64
	Context     string
	Task        string
	MaxLen      int
}

// Persona is the preamble that keeps a generated participant in character.
func Persona(req Request) string {
	parts := []string{
		fmt.Sprintf("You are %s in a group chat with %d participants.", req.Speaker, req.Total),
		fmt.Sprintf("The other participants are: %s.", strings.Join(req.Others, ", ")),
	}
	if strings.TrimSpace(req.Personality) != "" {
		parts = append(parts, req.Personality)
	}
	limit := req.MaxLen
	if limit <= 0 {
		limit = 150
	}
	parts = append(parts,
		"Keep your responses VERY concise (1-2 short sentences).",
		fmt.Sprintf("Your responses should be under %d characters whenever possible.", limit),
		"You can ask questions to other participants by addressing them by their name.",
		"You are trying to determine which participant is a human pretending to be an AI.",
		"Stay in character and never reveal that you are a language model.",
		"Be conversational but brief in your responses.",
	)
	return strings.Join(parts, " ")
}

// BuildPrompt concatenates persona, chat history and the task prompt.
func BuildPrompt(req Request) string {
	history := strings.TrimSpace(req.Context)
	if history == "" {
		history = "(no prior messages)"
	}
	return strings.Join([]string{
		Persona(req),
		"",
		"Chat history:",
		history,
		"",
		strings.TrimSpace(req.Task),
	}, "\n")
}

// Truncate cuts text to maxLen characters and marks the cut. Text at or under
// the cap is returned untouched; maxLen <= 0 disables the cap.
func Truncate(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen]) + TruncationMarker
}

// Task prompts, one per kind of generated turn.
const (
	TaskIntroduction = "Introduce yourself briefly to the group. Don't reveal that you're an AI."
	TaskContinue     = "Provide your next message in the conversation."
	TaskReply        = "Respond to the previous question directed at you. Keep your response brief and natural."
	TaskVote         = "Based on the conversation, which participant do you think is the human? Respond with just the name and a brief explanation why."
)

// TaskQuestion asks the speaker to probe target for a revealing answer.
func TaskQuestion(target string) string {
	return fmt.Sprintf(
		"Ask a direct question to %s that might help reveal whether they are a human pretending to be an AI. "+
			"Make your question challenging but natural and VERY brief.",
		target,
	)
}
