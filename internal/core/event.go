package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPublished carries a named payload published to a group.
	EventPublished EventKind = iota
	// EventJoined confirms that the client joined a group.
	EventJoined
	// EventLeft confirms that the client left a group.
	EventLeft
	// EventError notifies clients about a domain error.
	EventError
)

// EventReceiveMessage is the event name used for newly appended chat messages.
const EventReceiveMessage = "ReceiveMessage"

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Group   string
	Name    string
	Payload any
	Error   *CoreError
}

// MessagePayload is the push body for EventReceiveMessage.
type MessagePayload struct {
	ConversationID int64     `json:"conversationId"`
	MessageID      int64     `json:"messageId"`
	Content        string    `json:"content"`
	SenderName     string    `json:"senderName"`
	SentAt         time.Time `json:"sentAt"`
}
