package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"galgame-server/internal/models"
	"galgame-server/internal/persona"
	"galgame-server/internal/router"
	"galgame-server/internal/session"
)

// Handler serves the HTTP and websocket transports of the game.
type Handler struct {
	router        *router.Router
	sessions      *session.Store
	personas      persona.Registry
	conversations persona.ConversationStore
	jwtSecret     []byte
	logger        *zap.Logger
}

func NewHandler(r *router.Router, sessions *session.Store, personas persona.Registry, conversations persona.ConversationStore, jwtSecret string, logger *zap.Logger) *Handler {
	h := &Handler{
		router:        r,
		sessions:      sessions,
		personas:      personas,
		conversations: conversations,
		logger:        logger.Named("APIHandler"),
	}
	if jwtSecret != "" {
		h.jwtSecret = []byte(jwtSecret)
	}
	return h
}

// NewEngine builds the gin engine with logging, recovery, health and the game routes.
func NewEngine(h *Handler, logger *zap.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(GinZapLogger(logger))
	engine.Use(gin.Recovery())

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	engine.GET("/health", healthHandler)
	engine.HEAD("/health", healthHandler)

	h.RegisterRoutes(engine)
	return engine
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.POST("/messages", h.postMessage)
		api.GET("/sessions/:id", h.getSession)
		api.PUT("/sessions/:id/persona", h.bindPersona)
	}
	r.GET("/ws", h.serveWS)
}

func (h *Handler) postMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	replies := make([]string, 0, 4)
	res := h.router.Dispatch(c.Request.Context(), router.Message{SessionID: req.SessionID, Text: req.Text}, func(text string) error {
		replies = append(replies, text)
		return nil
	})

	c.JSON(http.StatusOK, MessageResponse{Replies: replies, Result: res})
}

func (h *Handler) getSession(c *gin.Context) {
	id := c.Param("id")
	sess, ok := h.sessions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: models.ErrSessionNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess.Snapshot()))
}

func (h *Handler) bindPersona(c *gin.Context) {
	id := c.Param("id")
	log := h.logger.With(zap.String("sessionID", id))

	var req BindPersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	if req.PersonaID != nil && *req.PersonaID != models.NoPersonaID {
		if _, err := h.personas.Get(c.Request.Context(), *req.PersonaID); err != nil {
			if errors.Is(err, models.ErrPersonaNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
				return
			}
			log.Error("Failed to look up persona", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
			return
		}
	}

	conv, err := h.conversations.Bind(c.Request.Context(), id, req.PersonaID)
	if err != nil {
		log.Error("Failed to bind persona", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	log.Info("Persona bound", zap.Stringp("personaID", conv.PersonaID))
	c.JSON(http.StatusOK, conv)
}
