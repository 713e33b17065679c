// Package llm adapts hosted text-generation APIs to a single Generator
// interface used by the coaching dispatcher.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role tags a turn in a prompt.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Turn is one role-tagged piece of prompt text.
type Turn struct {
	Role    Role
	Content string
}

// Prompt is a complete generation request. A nil Temperature leaves the
// provider default in place; zero is sent as zero.
type Prompt struct {
	Turns       []Turn
	Temperature *float64
	MaxTokens   int
}

// Float returns a pointer to v, for Prompt.Temperature.
func Float(v float64) *float64 { return &v }

// System returns the concatenated system turns.
func (p Prompt) System() string {
	var parts []string
	for _, t := range p.Turns {
		if t.Role == RoleSystem {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ErrEmpty is returned when the service answers without any text.
var ErrEmpty = errors.New("llm: empty completion")

// Generator produces text for a prompt. Implementations may block for
// seconds and must honor ctx.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string // "openai" or "gemini"
	Model    string
	APIKey   string
	BaseURL  string
}

// New builds the Generator named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAI(cfg)
	case "gemini":
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
