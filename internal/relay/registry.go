package relay

import (
	"fmt"

	"messenger/pkg/logger"
)

// Register adds conn to the registry. Several connections may share a
// username unless the hub was built WithExclusiveUsernames. Registering the
// same connection twice is a no-op.
func (h *Hub) Register(conn *Connection) error {
	if conn == nil || conn.username == "" {
		return ErrEmptyUsername
	}

	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		h.mu.Unlock()
		return nil
	}
	wasOnline := h.onlineLocked(conn.username)
	if h.exclusive && wasOnline {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateUsername, conn.username)
	}
	h.conns[conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	if !wasOnline {
		logger.Info("User %s is online", conn.username)
	}
	logger.Debug("Connection %s registered for %s. Total connections: %d", conn.id, conn.username, total)
	return nil
}

// Unregister removes conn from every room it joined, announcing the
// departure to the remaining members, then discards it and closes its
// transport. Unregistering an unknown connection does nothing.
func (h *Hub) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	h.mu.Lock()
	if _, ok := h.conns[conn]; !ok {
		h.mu.Unlock()
		return
	}
	var notices []delivery
	for _, key := range sortedKeys(conn.rooms) {
		if d, ok := h.leaveLocked(key, conn); ok {
			notices = append(notices, d)
		}
	}
	delete(h.conns, conn)
	stillOnline := h.onlineLocked(conn.username)
	total := len(h.conns)
	h.mu.Unlock()

	h.flush(notices...)

	if conn.transport != nil {
		if err := conn.transport.Close(); err != nil {
			logger.Debug("Error closing transport for %s: %v", conn.id, err)
		}
	}
	if !stillOnline {
		logger.Info("User %s is offline", conn.username)
	}
	logger.Debug("Connection %s unregistered. Total connections: %d", conn.id, total)
}

// Deliver pushes payload to a single connection. A dead or saturated
// transport is logged and skipped; the connection stays registered until
// its own lifecycle unregisters it.
func (h *Hub) Deliver(conn *Connection, payload []byte) bool {
	if conn == nil || conn.transport == nil || payload == nil {
		return false
	}
	if err := conn.transport.Write(payload); err != nil {
		logger.Warn("Delivery to %s (%s) failed: %v", conn.username, conn.id, err)
		return false
	}
	return true
}
