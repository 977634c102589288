package relay

import (
	"fmt"
	"sort"

	"messenger/internal/models"
	"messenger/pkg/logger"
)

// Join adds conn to the room, creating the room on first use, and tells the
// other members. Joining a room twice changes nothing.
func (h *Hub) Join(roomKey string, conn *Connection) error {
	if roomKey == "" {
		return ErrEmptyRoom
	}

	h.mu.Lock()
	if _, ok := h.conns[conn]; !ok {
		h.mu.Unlock()
		return ErrNotRegistered
	}
	d, joined := h.joinLocked(roomKey, conn)
	h.mu.Unlock()

	if joined {
		logger.Debug("%s joined room %s", conn.username, roomKey)
		h.flush(d)
	}
	return nil
}

// Leave removes conn from the room and tells the remaining members. The room
// is dropped once empty. Leaving a room that was never joined is a no-op.
func (h *Hub) Leave(roomKey string, conn *Connection) error {
	if roomKey == "" {
		return ErrEmptyRoom
	}

	h.mu.Lock()
	if _, ok := h.conns[conn]; !ok {
		h.mu.Unlock()
		return ErrNotRegistered
	}
	d, left := h.leaveLocked(roomKey, conn)
	h.mu.Unlock()

	if left {
		logger.Debug("%s left room %s", conn.username, roomKey)
		h.flush(d)
	}
	return nil
}

func (h *Hub) joinLocked(roomKey string, conn *Connection) (delivery, bool) {
	members, ok := h.rooms[roomKey]
	if !ok {
		members = make(map[*Connection]struct{})
		h.rooms[roomKey] = members
	}
	if _, already := members[conn]; already {
		return delivery{}, false
	}

	others := snapshot(members, nil)
	members[conn] = struct{}{}
	conn.rooms[roomKey] = struct{}{}

	return delivery{
		to:      others,
		payload: h.notice(fmt.Sprintf("%s has joined the chat", conn.username)),
	}, true
}

func (h *Hub) leaveLocked(roomKey string, conn *Connection) (delivery, bool) {
	members, ok := h.rooms[roomKey]
	if !ok {
		return delivery{}, false
	}
	if _, member := members[conn]; !member {
		return delivery{}, false
	}

	delete(members, conn)
	delete(conn.rooms, roomKey)
	if len(members) == 0 {
		delete(h.rooms, roomKey)
		return delivery{}, true
	}

	return delivery{
		to:      snapshot(members, nil),
		payload: h.notice(fmt.Sprintf("%s has left the chat", conn.username)),
	}, true
}

func (h *Hub) notice(content string) []byte {
	return h.encode(models.OutboundEvent{
		Event:     models.EventMessage,
		Sender:    models.ServerSender,
		Content:   content,
		Timestamp: h.timestamp(),
	})
}

// snapshot copies a member set, leaving out skip.
func snapshot(set map[*Connection]struct{}, skip *Connection) []*Connection {
	out := make([]*Connection, 0, len(set))
	for c := range set {
		if c != skip {
			out = append(out, c)
		}
	}
	return out
}

// Members returns the connections currently in the room.
func (h *Hub) Members(roomKey string) []*Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshot(h.rooms[roomKey], nil)
}

// Rooms returns the sorted room keys conn has joined.
func (h *Hub) Rooms(conn *Connection) []string {
	if conn == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return sortedKeys(conn.rooms)
}

func (h *Hub) HasRoom(roomKey string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[roomKey]
	return ok
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// ListRooms describes every live room, ordered by key.
func (h *Hub) ListRooms() []models.RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := make([]models.RoomInfo, 0, len(h.rooms))
	for key, members := range h.rooms {
		rooms = append(rooms, models.RoomInfo{Key: key, MemberCount: len(members)})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Key < rooms[j].Key })
	return rooms
}
