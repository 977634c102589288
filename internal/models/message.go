package models

import "time"

// Message is a committed chat message. Recipient is the room key of a private
// conversation, empty for global chat.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Room returns the room key the message was routed to.
func (m Message) Room() string {
	if m.Recipient == "" {
		return GlobalRoom
	}
	return m.Recipient
}

// RoomInfo describes a live room in the membership table.
type RoomInfo struct {
	Key         string `json:"key"`
	MemberCount int    `json:"member_count"`
}
