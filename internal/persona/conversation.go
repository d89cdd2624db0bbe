package persona

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"galgame-server/internal/models"
)

// ConversationStore tracks which conversation, and so which persona, each
// session identifier is bound to.
type ConversationStore interface {
	// Current returns the session's conversation, creating an unbound one on first use.
	Current(ctx context.Context, sessionID string) (*models.Conversation, error)
	// Bind sets the persona of the session's conversation. nil unbinds it.
	Bind(ctx context.Context, sessionID string, personaID *string) (*models.Conversation, error)
}

// MemoryConversationStore keeps conversations in process memory.
type MemoryConversationStore struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
}

var _ ConversationStore = (*MemoryConversationStore)(nil)

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{conversations: make(map[string]models.Conversation)}
}

func (s *MemoryConversationStore) Current(_ context.Context, sessionID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.currentLocked(sessionID)
	return &conv, nil
}

func (s *MemoryConversationStore) Bind(_ context.Context, sessionID string, personaID *string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.currentLocked(sessionID)
	conv.PersonaID = copyID(personaID)
	s.conversations[sessionID] = conv
	out := conv
	out.PersonaID = copyID(conv.PersonaID)
	return &out, nil
}

func (s *MemoryConversationStore) currentLocked(sessionID string) models.Conversation {
	conv, ok := s.conversations[sessionID]
	if !ok {
		conv = models.Conversation{ID: uuid.NewString()}
		s.conversations[sessionID] = conv
	}
	conv.PersonaID = copyID(conv.PersonaID)
	return conv
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
