package session

import (
	"errors"
	"fmt"
	"sync"

	"galgame-server/internal/models"
)

// ErrIllegalTransition is returned when a phase change is not allowed from the current phase.
var ErrIllegalTransition = errors.New("illegal session phase transition")

// Phase is the explicit narrative state of a session.
type Phase int

const (
	// PhaseInactive: no game is running.
	PhaseInactive Phase = iota
	// PhaseGenerating: a game is running and no option set is on offer yet
	// (opening in progress, or the opening failed).
	PhaseGenerating
	// PhaseAwaitingChoice: three options are stored and the player may pick one.
	PhaseAwaitingChoice
)

func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseGenerating:
		return "generating"
	case PhaseAwaitingChoice:
		return "awaiting_choice"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) canTransitionTo(to Phase) bool {
	if to == PhaseInactive {
		return true
	}
	switch p {
	case PhaseInactive:
		return to == PhaseGenerating
	case PhaseGenerating:
		return to == PhaseAwaitingChoice
	case PhaseAwaitingChoice:
		return to == PhaseGenerating
	}
	return false
}

// Session is the game state of one session identifier. All methods are safe
// for concurrent use; turn-level serialization is done with Store.Lock.
type Session struct {
	id string

	mu          sync.RWMutex
	phase       Phase
	history     []models.Message
	lastOptions map[models.Label]string
}

func newSession(id string) *Session {
	return &Session{
		id:          id,
		phase:       PhaseInactive,
		lastOptions: make(map[models.Label]string, len(models.Labels)),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Active reports whether a game is running.
func (s *Session) Active() bool {
	return s.Phase() != PhaseInactive
}

// Transition moves the session to phase `to`.
func (s *Session) Transition(to Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.canTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.phase, to)
	}
	s.phase = to
	return nil
}

// Stop deactivates the session and clears its history and options in one step.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseInactive
	s.history = nil
	s.lastOptions = make(map[models.Label]string, len(models.Labels))
}

// History returns a copy of the conversation history.
func (s *Session) History() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Append adds messages to the end of the history.
func (s *Session) Append(msgs ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// ResetOptions drops the current option set.
func (s *Session) ResetOptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOptions = make(map[models.Label]string, len(models.Labels))
}

func (s *Session) SetOption(label models.Label, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOptions[label] = text
}

// Option returns the stored text for label.
func (s *Session) Option(label models.Label) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.lastOptions[label]
	return text, ok
}

// Options returns a copy of the current option set.
func (s *Session) Options() map[models.Label]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Label]string, len(s.lastOptions))
	for k, v := range s.lastOptions {
		out[k] = v
	}
	return out
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID      string
	Phase   Phase
	History []models.Message
	Options map[models.Label]string
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:      s.id,
		Phase:   s.Phase(),
		History: s.History(),
		Options: s.Options(),
	}
}
