package coach

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/imcoach/internal/bus"
	"github.com/matheus3301/imcoach/internal/imsg"
	"github.com/matheus3301/imcoach/internal/llm"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	userID  = "+14155550100"
	agentID = "agent@icloud.com"
	target  = "+15551234567"
)

var agentChat = "iMessage;-;" + agentID

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []llm.Prompt
	text    string
	err     error
	block   chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type sent struct {
	To     string
	Text   string
	Reason string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{To: to, Text: text, Reason: SendReason(ctx)})
	return f.err
}

func (f *fakeSender) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func newTestDispatcher(gen llm.Generator, s Sender) (*Dispatcher, *Sessions, *bus.Bus) {
	sessions := NewSessions(MatchContains)
	b := bus.New()
	d := NewDispatcher(Options{Identity: Identity{UserID: userID, AgentID: agentID}},
		sessions, NewDedup(0), gen, s, b, nil)
	return d, sessions, b
}

func activation(id string) imsg.Message {
	return msg(id, userID, agentChat, "coach me on "+target+" - help me negotiate", false)
}

func incoming(id, text string) imsg.Message {
	return msg(id, target, "iMessage;-;"+target, text, false)
}

func TestEndToEndDuplicateRedelivery(t *testing.T) {
	gen := &fakeGenerator{text: "Counter at 10% higher."}
	snd := &fakeSender{}
	d, _, _ := newTestDispatcher(gen, snd)
	ctx := context.Background()

	steps := []struct {
		msg  imsg.Message
		want Outcome
	}{
		{activation("a1"), ActivationCommand},
		{incoming("m1", "what's your number?"), CoachableEvent},
		{incoming("m1", "what's your number?"), Duplicate},
	}
	for _, s := range steps {
		got, err := d.Handle(ctx, s.msg)
		if err != nil {
			t.Fatalf("Handle(%s) error = %v", s.msg.ID, err)
		}
		if got != s.want {
			t.Errorf("Handle(%s) = %v, want %v", s.msg.ID, got, s.want)
		}
	}

	if gen.calls() != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls())
	}
	out := snd.messages()
	if len(out) != 2 {
		t.Fatalf("sent %d messages, want 2 (ack + coaching): %+v", len(out), out)
	}
	if !strings.Contains(out[0].Text, "Coaching activated for "+target) {
		t.Errorf("first send = %q, want activation ack", out[0].Text)
	}
	if out[1].To != userID || !strings.Contains(out[1].Text, "Counter at 10% higher.") {
		t.Errorf("second send = %+v, want coaching to user", out[1])
	}
	if out[0].Reason != ReasonAck || out[1].Reason != ReasonCoaching {
		t.Errorf("reasons = (%q, %q), want (ack, coaching)", out[0].Reason, out[1].Reason)
	}
}

func TestOutgoingNeverCoaches(t *testing.T) {
	gen := &fakeGenerator{text: "x"}
	snd := &fakeSender{}
	d, sessions, _ := newTestDispatcher(gen, snd)
	sessions.Activate(target, "g")

	got, err := d.Handle(context.Background(), msg("o1", "me", "iMessage;-;"+target, "hi!", true))
	if err != nil || got != Outgoing {
		t.Fatalf("Handle() = (%v, %v), want (Outgoing, nil)", got, err)
	}
	if gen.calls() != 0 || len(snd.messages()) != 0 {
		t.Error("outgoing message triggered generation or send")
	}
	sess, _ := sessions.Get(target)
	if len(sess.History) != 1 || !sess.History[0].IsFromMe {
		t.Errorf("history = %+v, want the outgoing message", sess.History)
	}
}

func TestUserMessageToAgentWithoutCommand(t *testing.T) {
	snd := &fakeSender{}
	d, sessions, _ := newTestDispatcher(nil, snd)

	got, err := d.Handle(context.Background(), msg("c1", userID, agentChat, "hello agent", false))
	if err != nil || got != IgnoredCommand {
		t.Fatalf("Handle() = (%v, %v), want (IgnoredCommand, nil)", got, err)
	}
	if sessions.Len() != 0 || len(snd.messages()) != 0 {
		t.Error("non-command created a session or sent a message")
	}
}

func TestCommandOutsideAgentChatIsNotActivation(t *testing.T) {
	d, sessions, _ := newTestDispatcher(nil, &fakeSender{})

	got, _ := d.Handle(context.Background(), msg("c1", userID, "iMessage;-;+19999", "coach me on x - y", false))
	if got != NoActiveSession {
		t.Errorf("Handle() = %v, want NoActiveSession", got)
	}
	if sessions.Len() != 0 {
		t.Error("session created from a chat that is not the agent chat")
	}
}

func TestNoActiveSession(t *testing.T) {
	gen := &fakeGenerator{text: "x"}
	d, _, _ := newTestDispatcher(gen, &fakeSender{})

	got, err := d.Handle(context.Background(), incoming("m1", "hey"))
	if err != nil || got != NoActiveSession {
		t.Fatalf("Handle() = (%v, %v), want (NoActiveSession, nil)", got, err)
	}
	if gen.calls() != 0 {
		t.Error("generator called without a session")
	}
}

func TestGenerationFailureUsesFallback(t *testing.T) {
	tests := []struct {
		name string
		gen  llm.Generator
	}{
		{"error", &fakeGenerator{err: errors.New("503")}},
		{"empty", &fakeGenerator{text: "   "}},
		{"no generator", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snd := &fakeSender{}
			d, sessions, _ := newTestDispatcher(tt.gen, snd)
			sessions.Activate(target, "g")

			got, err := d.Handle(context.Background(), incoming("m1", "hey"))
			if err != nil || got != CoachableEvent {
				t.Fatalf("Handle() = (%v, %v), want (CoachableEvent, nil)", got, err)
			}
			out := snd.messages()
			if len(out) != 1 || !strings.HasSuffix(out[0].Text, FallbackCoaching) {
				t.Errorf("sent %+v, want one message ending in fallback", out)
			}
		})
	}
}

func TestSendFailureKeepsHistory(t *testing.T) {
	snd := &fakeSender{err: errors.New("messages not running")}
	d, sessions, b := newTestDispatcher(&fakeGenerator{text: "x"}, snd)
	sessions.Activate(target, "g")
	ch, unsub := b.Subscribe(bus.KindSendFailed, 4)
	defer unsub()

	got, err := d.Handle(context.Background(), incoming("m1", "hey"))
	if got != CoachableEvent {
		t.Errorf("Handle() outcome = %v, want CoachableEvent", got)
	}
	if err == nil || !strings.Contains(err.Error(), "messages not running") {
		t.Fatalf("Handle() error = %v, want send failure", err)
	}
	sess, _ := sessions.Get(target)
	if len(sess.History) != 1 {
		t.Errorf("history length = %d, want 1 (append is not rolled back)", len(sess.History))
	}
	select {
	case evt := <-ch:
		if f, ok := evt.Payload.(SendFailure); !ok || f.To != userID {
			t.Errorf("payload = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no send_failed event")
	}
}

func TestPromptIncludesConversation(t *testing.T) {
	gen := &fakeGenerator{text: "x"}
	d, _, _ := newTestDispatcher(gen, &fakeSender{})
	ctx := context.Background()

	_, _ = d.Handle(ctx, activation("a1"))
	_, _ = d.Handle(ctx, incoming("m1", "are you free friday?"))
	_, _ = d.Handle(ctx, msg("o1", "me", "iMessage;-;"+target, "maybe, why?", true))
	_, _ = d.Handle(ctx, incoming("m2", "dinner?"))

	if gen.calls() != 2 {
		t.Fatalf("generator called %d times, want 2", gen.calls())
	}
	p := gen.prompts[1]
	var lines []string
	for _, turn := range p.Turns[1 : len(p.Turns)-1] {
		lines = append(lines, turn.Content)
	}
	want := []string{
		"[Contact sent]: are you free friday?",
		"[User sent]: maybe, why?",
		"[Contact sent]: dinner?",
	}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("history turns = %q, want %q", lines, want)
	}
	if !strings.Contains(p.Turns[0].Content, "help me negotiate") {
		t.Errorf("preamble missing goal: %q", p.Turns[0].Content)
	}
}

func TestRunDoesNotBlockOnSlowGeneration(t *testing.T) {
	gen := &fakeGenerator{text: "x", block: make(chan struct{})}
	snd := &fakeSender{}
	d, sessions, b := newTestDispatcher(gen, snd)
	sessions.Activate(target, "g")
	sessions.Activate("+15550000002", "g2")

	activated, unsub := b.Subscribe(bus.KindSessionActivated, 4)
	defer unsub()

	in := make(chan imsg.Message)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx, in)
	defer d.Stop()

	// The first coaching request stalls in the generator; later events must
	// still be processed.
	in <- incoming("m1", "hello?")
	in <- activation("a1")

	select {
	case <-activated:
	case <-time.After(2 * time.Second):
		t.Fatal("activation was not processed while generation was blocked")
	}

	close(gen.block)
	deadline := time.After(2 * time.Second)
	for len(snd.messages()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("sent %d messages, want 2", len(snd.messages()))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunStopsWhenInputCloses(t *testing.T) {
	d, _, _ := newTestDispatcher(nil, &fakeSender{})
	in := make(chan imsg.Message, 1)
	in <- incoming("m1", "x")
	close(in)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), in)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after input closed")
	}
}

func TestActivateAndDeactivate(t *testing.T) {
	snd := &fakeSender{}
	d, sessions, _ := newTestDispatcher(nil, snd)

	if err := d.Activate(context.Background(), Activation{Contact: "Dana", Goal: "g"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := sessions.Get("Dana"); !ok {
		t.Error("Activate() did not create a session")
	}
	if len(snd.messages()) != 1 {
		t.Errorf("sent %d messages, want 1 ack", len(snd.messages()))
	}
	if !d.Deactivate("Dana") || d.Deactivate("Dana") {
		t.Error("Deactivate() should succeed once")
	}
}

func TestOutcomeString(t *testing.T) {
	if CoachableEvent.String() != "coachable" || Outcome(99).String() != "outcome(99)" {
		t.Error("unexpected Outcome strings")
	}
}

func TestActivationWithBlankGoal(t *testing.T) {
	snd := &fakeSender{}
	d, sessions, _ := newTestDispatcher(nil, snd)

	got, err := d.Handle(context.Background(), msg("a1", userID, agentChat, "coach me on bob -  ", false))
	if err != nil || got != ActivationCommand {
		t.Fatalf("Handle() = (%v, %v), want (ActivationCommand, nil)", got, err)
	}
	sess, ok := sessions.Get("bob")
	if !ok || sess.Goal != "" {
		t.Errorf("session = (%+v, %v), want bob with empty goal", sess, ok)
	}
	if out := snd.messages(); len(out) != 1 || out[0].Reason != ReasonAck {
		t.Errorf("sent %+v, want one ack", out)
	}
}
