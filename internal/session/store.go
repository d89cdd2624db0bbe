package session

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Store maps session identifiers to sessions. Entries live until ClearAll.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	turnsMu sync.Mutex
	turns   map[string]*sync.Mutex

	logger *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		turns:    make(map[string]*sync.Mutex),
		logger:   logger.Named("SessionStore"),
	}
}

// Lock serializes turns for one identifier and returns the matching unlock.
// It also covers CreateOrReset, so a restart cannot interleave with a running turn.
func (s *Store) Lock(id string) (unlock func()) {
	s.turnsMu.Lock()
	m, ok := s.turns[id]
	if !ok {
		m = &sync.Mutex{}
		s.turns[id] = m
	}
	s.turnsMu.Unlock()

	m.Lock()
	return m.Unlock
}

// Get returns the session for id, if present.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// CreateOrReset replaces any entry for id with a fresh active session that
// has empty history and no options.
func (s *Store) CreateOrReset(id string) *Session {
	sess := newSession(id)
	// Inactive -> Generating is always legal on a new session.
	_ = sess.Transition(PhaseGenerating)

	s.mu.Lock()
	_, existed := s.sessions[id]
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Debug("Session created", zap.String("sessionID", id), zap.Bool("replaced", existed))
	return sess
}

// ClearAll drops every session. Sessions already handed out stay usable but
// are no longer reachable from the store.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	n := len(s.sessions)
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	s.logger.Info("All sessions cleared", zap.Int("count", n))
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ActiveCount returns the number of sessions with a running game.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.Active() {
			n++
		}
	}
	return n
}

// Collector exposes ActiveCount as the galgame_sessions_active gauge.
func (s *Store) Collector() prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "galgame_sessions_active",
		Help: "Number of sessions with a running game.",
	}, func() float64 { return float64(s.ActiveCount()) })
}
