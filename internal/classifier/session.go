package classifier

import (
	"sync"

	"github.com/quiltmem/quilt/pkg/types"
)

// maxHistory bounds the per-session context history stack.
const maxHistory = 20

// Session tracks the current context of one conversation. Sessions start in
// the general context and transition automatically when Observe scores a
// turn into a different context. Safe for concurrent use.
type Session struct {
	classifier *Classifier

	mu      sync.Mutex
	current string
	history []string
}

// NewSession creates a session in the general context.
func NewSession(classifier *Classifier) *Session {
	return &Session{
		classifier: classifier,
		current:    types.ContextGeneral,
	}
}

// Observe classifies a turn and transitions the session when the turn lands
// in a different context with a positive score. The previous context is
// pushed onto the history stack. Turns that hit nothing keep the session
// where it is.
func (s *Session) Observe(text string) (contextName string, confidence float64, changed bool) {
	name, conf := s.classifier.Classify(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if conf == 0 || name == s.current {
		return s.current, conf, false
	}

	s.push(s.current)
	s.current = name
	return name, conf, true
}

// Current returns the session's context.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns the context stack, oldest first. The returned slice is a
// copy.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// Exit pops the most recent context off the history stack and makes it
// current again. Exiting with an empty stack returns to general.
func (s *Session) Exit() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		s.current = types.ContextGeneral
		return s.current
	}

	s.current = s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return s.current
}

// Reset returns the session to the general context and clears history.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = types.ContextGeneral
	s.history = nil
}

// push appends to the bounded history stack, dropping the oldest entry when
// full.
func (s *Session) push(name string) {
	s.history = append(s.history, name)
	if len(s.history) > maxHistory {
		s.history = s.history[1:]
	}
}

// Sessions is a concurrency-safe registry of sessions keyed by session ID.
type Sessions struct {
	classifier *Classifier

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates an empty session registry.
func NewSessions(classifier *Classifier) *Sessions {
	return &Sessions{
		classifier: classifier,
		sessions:   make(map[string]*Session),
	}
}

// Get returns the session for the given ID, creating it on first use.
func (r *Sessions) Get(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		s = NewSession(r.classifier)
		r.sessions[sessionID] = s
	}
	return s
}

// Drop removes a session from the registry.
func (r *Sessions) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
