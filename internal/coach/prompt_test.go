package coach

import (
	"fmt"
	"strings"
	"testing"

	"github.com/matheus3301/imcoach/internal/imsg"
	"github.com/matheus3301/imcoach/internal/llm"
)

func TestBuildPromptWindow(t *testing.T) {
	var history []imsg.Message
	for i := range 15 {
		history = append(history, msg(fmt.Sprintf("m%d", i), "alex", "", fmt.Sprintf("line %d", i), i%2 == 0))
	}

	p := BuildPrompt("ask for a raise", history, "line 14", DefaultPromptOptions())

	// preamble + 10 history entries + final instruction
	if len(p.Turns) != 12 {
		t.Fatalf("got %d turns, want 12", len(p.Turns))
	}
	if p.Turns[0].Role != llm.RoleSystem || !strings.Contains(p.Turns[0].Content, "helping the user with: ask for a raise.") {
		t.Errorf("preamble = %+v", p.Turns[0])
	}
	if got, want := p.Turns[1].Content, "[Contact sent]: line 5"; got != want {
		t.Errorf("first history turn = %q, want %q", got, want)
	}
	if got, want := p.Turns[2].Content, "[User sent]: line 6"; got != want {
		t.Errorf("second history turn = %q, want %q", got, want)
	}
	last := p.Turns[len(p.Turns)-1]
	if last.Role != llm.RoleUser || last.Content != "They just said: \"line 14\"\n\nProvide coaching now." {
		t.Errorf("final turn = %+v", last)
	}
	if p.Temperature == nil || *p.Temperature != 0.7 || p.MaxTokens != 500 {
		t.Errorf("params = (%v, %d), want (0.7, 500)", p.Temperature, p.MaxTokens)
	}
}

func TestBuildPromptShortHistoryAndPlaceholder(t *testing.T) {
	history := []imsg.Message{
		{ID: "m1", Sender: "alex"},
		msg("m2", "me", "", "sure", true),
	}
	p := BuildPrompt("g", history, "", PromptOptions{HistoryWindow: 10})

	if len(p.Turns) != 4 {
		t.Fatalf("got %d turns, want 4", len(p.Turns))
	}
	if p.Turns[1].Content != "[Contact sent]: [no text]" {
		t.Errorf("placeholder turn = %q", p.Turns[1].Content)
	}
	if p.Turns[2].Content != "[User sent]: sure" {
		t.Errorf("user turn = %q", p.Turns[2].Content)
	}
}

func TestBuildPromptKeepsIncomingVerbatim(t *testing.T) {
	incoming := "she said \"no\"\nthen left 😬"
	p := BuildPrompt("g", nil, incoming, DefaultPromptOptions())
	if !strings.Contains(p.Turns[len(p.Turns)-1].Content, incoming) {
		t.Errorf("final turn does not contain incoming text verbatim: %q", p.Turns[len(p.Turns)-1].Content)
	}
}

func TestMessages(t *testing.T) {
	ack := ActivationAck(Activation{Contact: "Dana", Goal: "salary"})
	if !strings.Contains(ack, "Coaching activated for Dana") || !strings.Contains(ack, "Context: salary") {
		t.Errorf("ActivationAck() = %q", ack)
	}
	got := CoachingMessage("+1555", "hi", "Say hi back.")
	if got != "💬 +1555 said: \"hi\"\n\nSay hi back." {
		t.Errorf("CoachingMessage() = %q", got)
	}
}

func TestBuildPromptKeepsZeroTemperature(t *testing.T) {
	opts := DefaultPromptOptions()
	opts.Temperature = 0
	p := BuildPrompt("g", nil, "hi", opts)
	if p.Temperature == nil || *p.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", p.Temperature)
	}
}
