package models

type EventType string

const (
	EventJoin        EventType = "join"
	EventLeave       EventType = "leave"
	EventSendMessage EventType = "send_message"
	EventTyping      EventType = "typing"
	EventDisconnect  EventType = "disconnect"
	EventMessage     EventType = "message"
)

// GlobalRoom is the room key of the broadcast room.
const GlobalRoom = "global"

// ServerSender is the sender name carried by synthetic join/leave notices.
const ServerSender = "Server"

// InboundEvent is a client→server frame. Which fields are required depends
// on Event.
type InboundEvent struct {
	Event     EventType `json:"event,omitempty"`
	Username  string    `json:"username,omitempty"`
	Room      string    `json:"room,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Content   string    `json:"content,omitempty"`
}

// OutboundEvent is a server→client frame.
type OutboundEvent struct {
	Event     EventType `json:"event"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}
