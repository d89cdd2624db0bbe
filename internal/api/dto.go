package api

import (
	"galgame-server/internal/models"
	"galgame-server/internal/router"
	"galgame-server/internal/session"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Text      string `json:"text"`
}

type MessageResponse struct {
	Replies []string `json:"replies"`
	router.Result
}

type BindPersonaRequest struct {
	// nil unbinds the conversation; "[%None]" binds it to no persona.
	PersonaID *string `json:"persona_id"`
}

type SessionResponse struct {
	SessionID     string            `json:"session_id"`
	Active        bool              `json:"active"`
	Phase         string            `json:"phase"`
	HistoryLength int               `json:"history_length"`
	History       []models.Message  `json:"history"`
	Options       map[string]string `json:"options"`
}

func newSessionResponse(snap session.Snapshot) SessionResponse {
	options := make(map[string]string, len(snap.Options))
	for label, text := range snap.Options {
		options[string(label)] = text
	}
	return SessionResponse{
		SessionID:     snap.ID,
		Active:        snap.Phase != session.PhaseInactive,
		Phase:         snap.Phase.String(),
		HistoryLength: len(snap.History),
		History:       snap.History,
		Options:       options,
	}
}
