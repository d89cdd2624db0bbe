package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"galgame-server/internal/router"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Chinese text is 3 bytes per rune.
	maxMessageSize = 4096
	sendBuffer     = 32
)

var errConnectionClosed = errors.New("websocket connection closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the bot host connects server-to-server
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	sessionID string
	conn      *websocket.Conn
	send      chan string
	done      chan struct{}
	logger    *zap.Logger
}

// serveWS turns a connection into a chat transport: every text frame is one
// inbound message and every outbound item is one text frame.
func (h *Handler) serveWS(c *gin.Context) {
	sessionID, err := h.wsSessionID(c.Request)
	if err != nil {
		h.logger.Warn("WebSocket authentication failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized: " + err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered
		h.logger.Error("Failed to upgrade connection", zap.String("sessionID", sessionID), zap.Error(err))
		return
	}

	client := &wsClient{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan string, sendBuffer),
		done:      make(chan struct{}),
		logger:    h.logger.With(zap.String("sessionID", sessionID)),
	}
	client.logger.Info("WebSocket connection established")

	go client.writePump()
	client.readPump(h.router, c)
}

func (c *wsClient) emit(text string) error {
	select {
	case c.send <- text:
		return nil
	case <-c.done:
		return errConnectionClosed
	}
}

func (c *wsClient) readPump(r *router.Router, gc *gin.Context) {
	defer func() {
		close(c.done)
		_ = c.conn.Close()
		c.logger.Info("WebSocket connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.logger.Debug("Non-text frame ignored")
			continue
		}
		r.Dispatch(gc.Request.Context(), router.Message{SessionID: c.sessionID, Text: string(data)}, c.emit)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case text := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				c.logger.Warn("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// wsSessionID takes the session identifier from the token subject when a JWT
// secret is configured, otherwise from the "session" query parameter.
func (h *Handler) wsSessionID(r *http.Request) (string, error) {
	if h.jwtSecret == nil {
		id := r.URL.Query().Get("session")
		if id == "" {
			return "", errors.New("missing session parameter")
		}
		return id, nil
	}

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if tokenString == "" {
		return "", errors.New("missing token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("token parse error: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token claims")
	}
	return sub, nil
}
