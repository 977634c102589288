package handlers

import (
	"fmt"
	"net/http"

	"messenger/internal/relay"
	"messenger/internal/services"
)

type PresenceHandlers struct {
	directory *services.Directory
	hub       *relay.Hub
}

func NewPresenceHandlers(directory *services.Directory, hub *relay.Hub) *PresenceHandlers {
	return &PresenceHandlers{
		directory: directory,
		hub:       hub,
	}
}

// OnlineUsers lists registered users with their online flag.
func (h *PresenceHandlers) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.directory.OnlineUsers(r.Context()))
}

// Rooms lists the rooms that currently have members.
func (h *PresenceHandlers) Rooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.hub.ListRooms())
}

func (h *PresenceHandlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "messenger is running, %d connections", h.hub.ConnectionCount())
}
