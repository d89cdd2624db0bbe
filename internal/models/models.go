package models

import "errors"

// Role identifies who produced a history entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one entry of the history replayed to the text-generation provider.
// Content is always the exact text sent to or received from the provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Label is a player choice label.
type Label string

const (
	LabelA Label = "A"
	LabelB Label = "B"
	LabelC Label = "C"
)

// Labels lists the choice labels in the order options are generated and shown.
var Labels = []Label{LabelA, LabelB, LabelC}

// ParseLabel returns the label for an exact "A", "B" or "C" token.
func ParseLabel(s string) (Label, bool) {
	switch Label(s) {
	case LabelA, LabelB, LabelC:
		return Label(s), true
	}
	return "", false
}

// Conversation is the host-side conversation a session is currently bound to.
// A nil PersonaID means the conversation has no persona bound.
type Conversation struct {
	ID        string  `json:"id"`
	PersonaID *string `json:"persona_id,omitempty"`
}

// Persona is a registered character persona with its instruction text.
type Persona struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Prompt string `json:"prompt" yaml:"prompt"`
}

// NoPersonaID is the persona id a conversation carries when it was explicitly
// unbound from any persona.
const NoPersonaID = "[%None]"

// Application-wide errors
var (
	ErrConversationUnavailable = errors.New("conversation unavailable")
	ErrInvalidChoice           = errors.New("invalid choice")
	ErrPersonaNotFound         = errors.New("persona not found")
	ErrSessionNotFound         = errors.New("session not found")
)
