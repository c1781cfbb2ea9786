package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// User mirrors the identity provider's view of a user.
type User struct {
	ID          string
	DisplayName string
	UpdatedAt   time.Time
}

// Conversation is a two-party messaging thread.
type Conversation struct {
	ID           int64
	DirectKey    string // "dm:{min}:{max}" over the participant ids
	CreatedAt    time.Time
	Participants []string
}

// HasParticipant reports whether userID is linked to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message represents a persisted chat message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       string
	Content        string
	SentAt         time.Time
	IsRead         bool
}

// Notification is a persisted, user-addressed record about a domain event.
type Notification struct {
	ID        int64
	UserID    string
	Message   string
	CreatedAt time.Time
	IsRead    bool
	EventID   *int64
}

// Comment is a single entry of an event discussion.
type Comment struct {
	ID              int64
	EventID         int64
	UserID          string
	Content         string
	CreatedAt       time.Time
	ParentCommentID *int64
}

// Event is the subset of an event the messaging core needs.
type Event struct {
	ID              int64
	Title           string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	Location        string
	MaxParticipants *int
	OrganizerID     string
	CreatedAt       time.Time
}

// DirectKey returns the canonical key for the unordered pair {a, b}.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%s:%s", a, b)
}

// UserStore handles the identity mirror.
type UserStore interface {
	// UpsertUser stores or refreshes a user's display name.
	UpsertUser(ctx context.Context, id, displayName string) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*User, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation inserts a conversation and both participant links atomically.
	// Returns ErrConflict if a conversation with the same direct key already exists.
	CreateConversation(ctx context.Context, directKey string, userA, userB string) (*Conversation, error)

	// GetConversation retrieves a conversation with its participants.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// GetConversationByDirectKey retrieves the conversation for a canonical pair key.
	GetConversationByDirectKey(ctx context.Context, directKey string) (*Conversation, error)

	// ListConversations lists the user's conversations, most recent activity first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and assigns its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns all messages of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID int64) ([]*Message, error)

	// LastMessageTime returns the latest send time, or nil if the conversation is empty.
	LastMessageTime(ctx context.Context, conversationID int64) (*time.Time, error)

	// MarkMessagesRead flips unread messages not authored by readerID. Returns rows changed.
	MarkMessagesRead(ctx context.Context, conversationID int64, readerID string) (int64, error)

	// CountUnreadMessages counts unread messages addressed to userID across all conversations.
	CountUnreadMessages(ctx context.Context, userID string) (int, error)

	// CountUnreadInConversation counts unread messages addressed to userID in one conversation.
	CountUnreadInConversation(ctx context.Context, conversationID int64, userID string) (int, error)
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	// SaveNotification persists a notification and assigns its ID.
	SaveNotification(ctx context.Context, n *Notification) error

	// ListNotifications lists a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error)

	// CountUnreadNotifications counts a user's unread notifications.
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)

	// MarkNotificationRead flips the read flag. An empty ownerID matches any recipient.
	// Missing or already read notifications are not an error.
	MarkNotificationRead(ctx context.Context, id int64, ownerID string) error

	// MarkAllNotificationsRead flips every unread notification of a user.
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// CommentStore handles comment persistence.
type CommentStore interface {
	// SaveComment persists a comment and assigns its ID.
	SaveComment(ctx context.Context, c *Comment) error

	// GetComment retrieves a comment by ID.
	GetComment(ctx context.Context, id int64) (*Comment, error)

	// ListComments returns an event's comments ordered by creation time ascending.
	ListComments(ctx context.Context, eventID int64) ([]*Comment, error)
}

// EventStore handles the event collaborator's records.
type EventStore interface {
	// CreateEvent persists an event and assigns its ID.
	CreateEvent(ctx context.Context, ev *Event) error

	// GetEvent retrieves an event by ID.
	GetEvent(ctx context.Context, id int64) (*Event, error)

	// UpdateEvent overwrites the editable fields of an event.
	UpdateEvent(ctx context.Context, ev *Event) error

	// AddEventParticipant links a user to an event. Returns ErrConflict if already linked.
	AddEventParticipant(ctx context.Context, eventID int64, userID string) error

	// RemoveEventParticipant unlinks a user. Returns ErrNotFound if not linked.
	RemoveEventParticipant(ctx context.Context, eventID int64, userID string) error

	// ListEventParticipants lists participant user IDs in join order.
	ListEventParticipants(ctx context.Context, eventID int64) ([]string, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	NotificationStore
	CommentStore
	EventStore

	// Close closes the underlying database connection.
	Close() error
}
