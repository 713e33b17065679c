package coach

import (
	"fmt"
	"strings"

	"github.com/matheus3301/imcoach/internal/imsg"
	"github.com/matheus3301/imcoach/internal/llm"
)

const (
	// DefaultHistoryWindow is how many history entries go into a prompt.
	DefaultHistoryWindow = 10

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500

	// FallbackCoaching replaces a failed or empty generation.
	FallbackCoaching = "No coaching available"
)

const systemPreamble = `You are a conversation coach helping the user with: %s.

Analyze incoming messages and provide:
1. 2-3 succinct suggested responses with brief justifications
2. Advice and general tips as relevant

Be concise and actionable. Format suggestions clearly.`

// PromptOptions bounds the prompt and sets generation parameters.
type PromptOptions struct {
	HistoryWindow int
	Temperature   float64
	MaxTokens     int
}

// DefaultPromptOptions returns the stock window and generation parameters.
func DefaultPromptOptions() PromptOptions {
	return PromptOptions{
		HistoryWindow: DefaultHistoryWindow,
		Temperature:   DefaultTemperature,
		MaxTokens:     DefaultMaxTokens,
	}
}

// BuildPrompt assembles the coaching request: the goal preamble, the tail
// of the history, and the message that triggered the request.
func BuildPrompt(goal string, history []imsg.Message, incoming string, opts PromptOptions) llm.Prompt {
	window := opts.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}

	turns := make([]llm.Turn, 0, len(history)+2)
	turns = append(turns, llm.Turn{Role: llm.RoleSystem, Content: fmt.Sprintf(systemPreamble, goal)})
	for _, m := range history {
		turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: historyLine(m)})
	}
	turns = append(turns, llm.Turn{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("They just said: \"%s\"\n\nProvide coaching now.", incoming),
	})

	return llm.Prompt{
		Turns:       turns,
		Temperature: llm.Float(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
}

func historyLine(m imsg.Message) string {
	role := "[Contact sent]"
	if m.IsFromMe {
		role = "[User sent]"
	}
	text := "[no text]"
	if m.HasText && strings.TrimSpace(m.Text) != "" {
		text = m.Text
	}
	return role + ": " + text
}

// ActivationAck is sent back to the user after a session is activated.
func ActivationAck(a Activation) string {
	return fmt.Sprintf("Hi! Coaching activated for %s\n\nContext: %s\n\nStarting now 💬.", a.Contact, a.Goal)
}

// CoachingMessage wraps generated coaching with the message it answers.
func CoachingMessage(sender, text, coaching string) string {
	return fmt.Sprintf("💬 %s said: \"%s\"\n\n%s", sender, text, coaching)
}
