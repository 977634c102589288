package handlers

import "net/http"

// SetupRoutes registers every HTTP endpoint on mux. A nil AuthHandlers leaves
// /login and /register unmounted.
func SetupRoutes(mux *http.ServeMux, authHandlers *AuthHandlers, presenceHandlers *PresenceHandlers, wsHandlers *WebSocketHandlers) {
	// Auth routes
	if authHandlers != nil {
		mux.HandleFunc("/login", authHandlers.Login)
		mux.HandleFunc("/register", authHandlers.Register)
	}

	// Presence routes
	mux.HandleFunc("/online_users", presenceHandlers.OnlineUsers)
	mux.HandleFunc("/rooms", presenceHandlers.Rooms)
	mux.HandleFunc("/health", presenceHandlers.Health)

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}
