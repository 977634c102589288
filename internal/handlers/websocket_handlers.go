package handlers

import (
	"context"
	"errors"
	"net/http"

	"messenger/internal/relay"
	ws "messenger/internal/websocket"
	"messenger/pkg/logger"

	"github.com/gorilla/websocket"
)

// TokenAuthenticator resolves a bearer token to a validated username.
type TokenAuthenticator interface {
	UsernameFromToken(ctx context.Context, token string) (string, error)
}

type WebSocketHandlers struct {
	authenticator TokenAuthenticator
	hub           *relay.Hub
	sendBuffer    int
	upgrader      websocket.Upgrader
}

func NewWebSocketHandlers(authenticator TokenAuthenticator, hub *relay.Hub, sendBuffer int) *WebSocketHandlers {
	return &WebSocketHandlers{
		authenticator: authenticator,
		hub:           hub,
		sendBuffer:    sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Get token from query parameters
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	username, err := h.authenticator.UsernameFromToken(r.Context(), tokenStr)
	if err != nil {
		logger.Debug("Rejected websocket token from %s: %v", r.RemoteAddr, err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, username, r.RemoteAddr, h.sendBuffer)
	if err := h.hub.Register(client.Connection()); err != nil {
		reason := "registration failed"
		if errors.Is(err, relay.ErrDuplicateUsername) {
			reason = "username already connected"
		}
		logger.Warn("Refusing connection for %s from %s: %v", username, r.RemoteAddr, err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
		conn.Close()
		return
	}

	// Start client pumps
	go client.WritePump()
	go client.ReadPump()
}
