package coach

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/imcoach/internal/imsg"
)

// MatchMode controls how outgoing messages are attributed to a session.
type MatchMode string

const (
	// MatchContains attributes a message when the session target appears
	// anywhere in its chat id, or equals its sender. Tolerates the
	// "iMessage;-;<handle>" chat id format but can misattribute when one
	// handle is a substring of another.
	MatchContains MatchMode = "contains"
	// MatchExact requires the chat id to be the target or end in ";<target>".
	MatchExact MatchMode = "exact"
)

// Session is a snapshot of one coaching session.
type Session struct {
	Target      string
	Goal        string
	History     []imsg.Message
	ActivatedAt time.Time
}

// Sessions maps target contacts to their coaching session. All methods are
// safe for concurrent use; returned Sessions are copies.
type Sessions struct {
	mu    sync.Mutex
	byKey map[string]*Session
	order []string // activation order, used for first-match scans
	mode  MatchMode
	now   func() time.Time
}

// NewSessions returns an empty store using the given match mode.
func NewSessions(mode MatchMode) *Sessions {
	if mode == "" {
		mode = MatchContains
	}
	return &Sessions{
		byKey: make(map[string]*Session),
		mode:  mode,
		now:   time.Now,
	}
}

// Activate creates or replaces the session for contact. Replacing discards
// the previous history.
func (s *Sessions) Activate(contact, goal string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[contact]; !ok {
		s.order = append(s.order, contact)
	}
	sess := &Session{Target: contact, Goal: goal, ActivatedAt: s.now()}
	s.byKey[contact] = sess
	return sess.snapshot()
}

// Deactivate removes the session for contact.
func (s *Sessions) Deactivate(contact string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[contact]; !ok {
		return false
	}
	delete(s.byKey, contact)
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == contact })
	return true
}

// Get returns the session for contact.
func (s *Sessions) Get(contact string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byKey[contact]
	if !ok {
		return Session{}, false
	}
	return sess.snapshot(), true
}

// List returns all sessions in activation order.
func (s *Sessions) List() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k].snapshot())
	}
	return out
}

// Len returns the number of active sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

// AppendToMatching appends msg to the first session, in activation order,
// that the message belongs to. At most one session receives it.
func (s *Sessions) AppendToMatching(msg imsg.Message) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.order {
		sess := s.byKey[k]
		if s.matches(sess.Target, msg) {
			sess.History = append(sess.History, msg)
			return sess.Target, true
		}
	}
	return "", false
}

// AppendAndSnapshot appends msg to the session keyed by contact and returns
// a copy taken under the same lock, so callers can build a prompt without
// holding it.
func (s *Sessions) AppendAndSnapshot(contact string, msg imsg.Message) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byKey[contact]
	if !ok {
		return Session{}, false
	}
	sess.History = append(sess.History, msg)
	return sess.snapshot(), true
}

func (s *Sessions) matches(target string, msg imsg.Message) bool {
	if msg.Sender == target {
		return true
	}
	if s.mode == MatchExact {
		return msg.ChatID == target || strings.HasSuffix(msg.ChatID, ";"+target)
	}
	return strings.Contains(msg.ChatID, target)
}

func (sess *Session) snapshot() Session {
	cp := *sess
	cp.History = slices.Clone(sess.History)
	return cp
}
