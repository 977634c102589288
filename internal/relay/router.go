package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"messenger/internal/models"
	"messenger/pkg/logger"

	"github.com/google/uuid"
)

// Dispatch decodes one inbound frame from conn and handles it. Errors wrap
// ErrMalformedEvent for frames that were dropped; the hub state is never
// left inconsistent by a bad frame.
func (h *Hub) Dispatch(conn *Connection, raw []byte) error {
	var ev models.InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return h.Handle(conn, ev)
}

// Handle routes a decoded event by its tag. A frame without a tag that
// carries content is a chat message.
func (h *Hub) Handle(conn *Connection, ev models.InboundEvent) error {
	if conn == nil {
		return ErrNotRegistered
	}

	tag := ev.Event
	if tag == "" && ev.Content != "" {
		tag = models.EventSendMessage
	}

	switch tag {
	case models.EventJoin, models.EventLeave:
		if ev.Room == "" {
			return malformed(tag, "room")
		}
		if err := h.checkIdentity(conn, ev.Username, tag, "username"); err != nil {
			return err
		}
		if tag == models.EventJoin {
			return h.Join(ev.Room, conn)
		}
		return h.Leave(ev.Room, conn)

	case models.EventSendMessage:
		if err := h.checkIdentity(conn, ev.Sender, tag, "sender"); err != nil {
			return err
		}
		if strings.TrimSpace(ev.Content) == "" {
			return malformed(tag, "content")
		}
		return h.SendMessage(conn, ev.Recipient, ev.Content)

	case models.EventTyping:
		if err := h.checkIdentity(conn, ev.Sender, tag, "sender"); err != nil {
			return err
		}
		if ev.Recipient == "" {
			return malformed(tag, "recipient")
		}
		return h.Typing(conn, ev.Recipient)

	case models.EventDisconnect:
		h.Unregister(conn)
		return nil

	case "":
		return fmt.Errorf("%w: missing event tag", ErrMalformedEvent)
	default:
		return fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, tag)
	}
}

func malformed(tag models.EventType, field string) error {
	return fmt.Errorf("%w: %s without %s", ErrMalformedEvent, tag, field)
}

func (h *Hub) checkIdentity(conn *Connection, claimed string, tag models.EventType, field string) error {
	if claimed == "" {
		return malformed(tag, field)
	}
	if claimed != conn.username {
		return fmt.Errorf("%w: %s %s %q does not match connection user %q",
			ErrMalformedEvent, tag, field, claimed, conn.username)
	}
	return nil
}

// SendMessage commits a chat message from conn. An empty recipient
// broadcasts to every live connection; otherwise the message goes to the
// members of the room keyed by recipient. The sending connection never
// receives its own message.
func (h *Hub) SendMessage(conn *Connection, recipient, content string) error {
	msg := models.Message{
		ID:        uuid.NewString(),
		Sender:    conn.username,
		Recipient: recipient,
		Content:   content,
		Timestamp: h.now().UTC(),
	}

	h.mu.Lock()
	if _, ok := h.conns[conn]; !ok {
		h.mu.Unlock()
		return ErrNotRegistered
	}
	var targets []*Connection
	if recipient == "" {
		targets = snapshot(h.conns, conn)
	} else {
		targets = snapshot(h.rooms[recipient], conn)
	}
	persist := h.sink != nil && !h.closed
	if persist {
		h.persisting.Add(1)
	}
	h.mu.Unlock()

	if persist {
		h.persist(msg)
	}

	payload := h.encode(models.OutboundEvent{
		Event:     models.EventMessage,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Recipient: msg.Recipient,
		Timestamp: msg.Timestamp.Format(timeLayout),
	})
	delivered := h.fanOut(targets, payload)

	if recipient != "" && len(targets) == 0 {
		logger.Debug("Message from %s to room %s has no recipients", msg.Sender, recipient)
	}
	logger.Debug("Message %s from %s delivered to %d/%d connections", msg.ID, msg.Sender, delivered, len(targets))
	return nil
}

// Typing relays an ephemeral typing signal to the members of room
// recipient. It is never persisted.
func (h *Hub) Typing(conn *Connection, recipient string) error {
	h.mu.Lock()
	if _, ok := h.conns[conn]; !ok {
		h.mu.Unlock()
		return ErrNotRegistered
	}
	targets := snapshot(h.rooms[recipient], conn)
	h.mu.Unlock()

	h.fanOut(targets, h.encode(models.OutboundEvent{
		Event:  models.EventTyping,
		Sender: conn.username,
	}))
	return nil
}

// persist saves msg in its own goroutine. The caller has already counted it
// in h.persisting.
func (h *Hub) persist(msg models.Message) {
	go func() {
		defer h.persisting.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Recovered from panic saving message %s: %v", msg.ID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
		defer cancel()
		if err := h.sink.SaveMessage(ctx, msg); err != nil {
			logger.Error("Error saving message %s: %v", msg.ID, err)
		}
	}()
}
