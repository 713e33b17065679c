package coach

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/imcoach/internal/bus"
	"github.com/matheus3301/imcoach/internal/imsg"
	"github.com/matheus3301/imcoach/internal/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sender delivers a text message to a recipient handle.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Reasons passed to Sender through the context.
const (
	ReasonAck      = "ack"
	ReasonCoaching = "coaching"
)

type reasonKey struct{}

// SendReason reports why the dispatcher issued a Send call. It returns ""
// for sends that did not originate in the dispatcher.
func SendReason(ctx context.Context) string {
	r, _ := ctx.Value(reasonKey{}).(string)
	return r
}

// Identity holds the two handles the dispatcher matches against: the
// monitored user, and the agent account the user sends commands to.
type Identity struct {
	UserID  string
	AgentID string
}

// Outcome is the terminal state of one dispatched message.
type Outcome int

const (
	Duplicate Outcome = iota
	Outgoing
	ActivationCommand
	IgnoredCommand
	NoActiveSession
	CoachableEvent
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Outgoing:
		return "outgoing"
	case ActivationCommand:
		return "activation"
	case IgnoredCommand:
		return "ignored_command"
	case NoActiveSession:
		return "no_session"
	case CoachableEvent:
		return "coachable"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options configures a Dispatcher.
type Options struct {
	Identity Identity
	Prompt   PromptOptions
	// MaxConcurrent bounds in-flight generate-and-send jobs in Run.
	MaxConcurrent int
}

// SessionEvent is the payload of session lifecycle bus events.
type SessionEvent struct {
	Target string
	Goal   string
}

// HistoryEvent is the payload of coach.history_appended.
type HistoryEvent struct {
	Target    string
	MessageID string
	FromMe    bool
}

// SendFailure is the payload of coach.send_failed.
type SendFailure struct {
	To    string
	Error string
}

// Dispatcher classifies incoming messages and drives coaching sessions.
type Dispatcher struct {
	id       Identity
	prompt   PromptOptions
	limit    int
	sessions *Sessions
	dedup    *Dedup
	gen      llm.Generator
	sender   Sender
	bus      *bus.Bus
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once
}

// NewDispatcher wires a dispatcher. gen may be nil, in which case every
// coaching request gets the fallback text.
func NewDispatcher(opts Options, sessions *Sessions, dedup *Dedup, gen llm.Generator, sender Sender, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Prompt == (PromptOptions{}) {
		opts.Prompt = DefaultPromptOptions()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	return &Dispatcher{
		id:       opts.Identity,
		prompt:   opts.Prompt,
		limit:    opts.MaxConcurrent,
		sessions: sessions,
		dedup:    dedup,
		gen:      gen,
		sender:   sender,
		bus:      b,
		logger:   logger.Named("dispatcher"),
	}
}

// Handle dispatches one message synchronously, including any generation and
// send it triggers. Send errors are returned; session state changes made
// before the send are kept.
func (d *Dispatcher) Handle(ctx context.Context, msg imsg.Message) (Outcome, error) {
	outcome, work := d.route(msg)
	if work == nil {
		return outcome, nil
	}
	return outcome, work(ctx)
}

// Start consumes messages from in until ctx is cancelled, Stop is called,
// or in is closed.
func (d *Dispatcher) Start(ctx context.Context, in <-chan imsg.Message) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		d.Run(ctx, in)
	}()
}

// Stop cancels the loop started by Start and waits for in-flight jobs.
func (d *Dispatcher) Stop() {
	d.stop.Do(func() {
		if d.cancel != nil {
			d.cancel()
			<-d.done
		}
	})
}

// Run is the event loop. State transitions and activation acks happen on
// this goroutine in arrival order; coaching runs on a bounded group so one
// slow request does not hold up other contacts.
func (d *Dispatcher) Run(ctx context.Context, in <-chan imsg.Message) {
	var g errgroup.Group
	g.SetLimit(d.limit)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			outcome, work := d.route(msg)
			if work == nil {
				continue
			}
			// Acknowledge before routing anything else, so the user never
			// sees coaching for a contact ahead of the activation reply.
			if outcome == ActivationCommand {
				if err := work(ctx); err != nil {
					d.logger.Error("activation ack failed", zap.Error(err), zap.String("msg_id", msg.ID))
				}
				continue
			}
			g.Go(func() error {
				if err := work(ctx); err != nil {
					d.logger.Error("dispatch failed",
						zap.Error(err),
						zap.String("msg_id", msg.ID),
						zap.Stringer("outcome", outcome))
				}
				return nil
			})
		}
	}
}

type task func(ctx context.Context) error

// route applies every state change for msg and returns the remaining
// external work, if any. It never blocks on the network.
func (d *Dispatcher) route(msg imsg.Message) (Outcome, task) {
	if !d.dedup.ShouldProcess(msg.ID) {
		d.logger.Debug("duplicate message dropped", zap.String("msg_id", msg.ID))
		return Duplicate, nil
	}

	if msg.IsFromMe {
		if target, ok := d.sessions.AppendToMatching(msg); ok {
			d.logger.Debug("outgoing message added to history", zap.String("target", target), zap.String("msg_id", msg.ID))
			d.bus.Publish(bus.NewEvent(bus.KindHistoryAppended, HistoryEvent{Target: target, MessageID: msg.ID, FromMe: true}))
		}
		return Outgoing, nil
	}

	if msg.Sender == d.id.UserID && strings.Contains(msg.ChatID, d.id.AgentID) {
		a, ok := ParseActivation(msg.Text)
		if !ok {
			d.logger.Debug("message to agent is not a command", zap.String("msg_id", msg.ID))
			return IgnoredCommand, nil
		}
		d.sessions.Activate(a.Contact, a.Goal)
		d.logger.Info("coaching activated", zap.String("target", a.Contact), zap.String("goal", a.Goal))
		d.bus.Publish(bus.NewEvent(bus.KindSessionActivated, SessionEvent{Target: a.Contact, Goal: a.Goal}))
		return ActivationCommand, func(ctx context.Context) error {
			return d.send(ctx, ReasonAck, ActivationAck(a))
		}
	}

	sess, ok := d.sessions.AppendAndSnapshot(msg.Sender, msg)
	if !ok {
		return NoActiveSession, nil
	}
	d.bus.Publish(bus.NewEvent(bus.KindHistoryAppended, HistoryEvent{Target: sess.Target, MessageID: msg.ID}))
	return CoachableEvent, func(ctx context.Context) error {
		return d.coach(ctx, sess, msg)
	}
}

func (d *Dispatcher) coach(ctx context.Context, sess Session, msg imsg.Message) error {
	prompt := BuildPrompt(sess.Goal, sess.History, msg.Text, d.prompt)
	coaching := d.generate(ctx, prompt, sess.Target)

	if err := d.send(ctx, ReasonCoaching, CoachingMessage(msg.Sender, msg.DisplayText(), coaching)); err != nil {
		return err
	}
	d.logger.Info("coaching delivered", zap.String("target", sess.Target), zap.String("msg_id", msg.ID))
	d.bus.Publish(bus.NewEvent(bus.KindCoachingSent, HistoryEvent{Target: sess.Target, MessageID: msg.ID}))
	return nil
}

func (d *Dispatcher) generate(ctx context.Context, p llm.Prompt, target string) string {
	if d.gen == nil {
		return FallbackCoaching
	}
	text, err := d.gen.Generate(ctx, p)
	if err != nil {
		d.logger.Warn("coaching generation failed, using fallback", zap.Error(err), zap.String("target", target))
		return FallbackCoaching
	}
	if strings.TrimSpace(text) == "" {
		return FallbackCoaching
	}
	return text
}

func (d *Dispatcher) send(ctx context.Context, reason, text string) error {
	ctx = context.WithValue(ctx, reasonKey{}, reason)
	if err := d.sender.Send(ctx, d.id.UserID, text); err != nil {
		d.bus.Publish(bus.NewEvent(bus.KindSendFailed, SendFailure{To: d.id.UserID, Error: err.Error()}))
		return fmt.Errorf("send to %s: %w", d.id.UserID, err)
	}
	return nil
}

// Activate starts a session on behalf of the user, as if they had sent the
// activation command, and acknowledges it.
func (d *Dispatcher) Activate(ctx context.Context, a Activation) error {
	d.sessions.Activate(a.Contact, a.Goal)
	d.logger.Info("coaching activated via control API", zap.String("target", a.Contact))
	d.bus.Publish(bus.NewEvent(bus.KindSessionActivated, SessionEvent{Target: a.Contact, Goal: a.Goal}))
	return d.send(ctx, ReasonAck, ActivationAck(a))
}

// Deactivate ends the session for contact.
func (d *Dispatcher) Deactivate(contact string) bool {
	if !d.sessions.Deactivate(contact) {
		return false
	}
	d.logger.Info("coaching ended", zap.String("target", contact))
	d.bus.Publish(bus.NewEvent(bus.KindSessionEnded, SessionEvent{Target: contact}))
	return true
}

// Sessions exposes the session store for read-only callers.
func (d *Dispatcher) Sessions() *Sessions {
	return d.sessions
}
