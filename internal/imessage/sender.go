// Package imessage sends iMessages through the Messages app by running
// AppleScript with osascript.
package imessage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sendScript receives the recipient and the body as arguments so neither is
// ever interpolated into script source.
const sendScript = `on run argv
	set recipient to item 1 of argv
	set body to item 2 of argv
	tell application "Messages"
		set svc to 1st account whose service type = iMessage
		send body to participant recipient of svc
	end tell
end run
`

// DefaultTimeout bounds a single osascript invocation.
const DefaultTimeout = 15 * time.Second

// Runner executes a command with stdin and returns its combined output.
type Runner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Sender delivers text through Messages.app.
type Sender struct {
	run     Runner
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Sender.
type Option func(*Sender)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(s *Sender) { s.run = r }
}

// WithTimeout sets the per-send timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) { s.timeout = d }
}

// NewSender creates an osascript-backed sender.
func NewSender(logger *zap.Logger, opts ...Option) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sender{run: ExecRunner, timeout: DefaultTimeout, logger: logger.Named("imessage")}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SendText sends text to the handle to (a phone number or Apple ID email).
func (s *Sender) SendText(ctx context.Context, to, text string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("imessage: empty recipient")
	}
	if text == "" {
		return errors.New("imessage: empty message")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.run(ctx, []byte(sendScript), "osascript", "-", to, text)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("imessage: send to %s: %w", to, ctx.Err())
		}
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("imessage: send to %s: %w", to, err)
		}
		return fmt.Errorf("imessage: send to %s: %s: %w", to, msg, err)
	}
	s.logger.Debug("osascript send ok", zap.String("to", to), zap.Int("len", len(text)))
	return nil
}
