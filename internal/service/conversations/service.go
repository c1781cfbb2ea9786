package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/core"
	"github.com/vovakirdan/eventure-server/internal/metrics"
	"github.com/vovakirdan/eventure-server/internal/store"
)

// Common errors for conversation operations.
var (
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrEmptyContent         = errors.New("message content is empty")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("sender is not a participant of the conversation")
	ErrUserNotFound         = errors.New("user not found")
)

const sendStripes = 32

// Store is the persistence the conversation service needs.
type Store interface {
	store.UserStore
	store.ConversationStore
	store.MessageStore
}

// Summary is one row of a user's conversation list.
type Summary struct {
	Conversation *store.Conversation
	LastActivity time.Time
	Unread       int
}

// View is an opened conversation with its full history.
type View struct {
	Conversation *store.Conversation
	Messages     []*store.Message
}

// Service resolves conversations and appends, lists and tracks messages.
type Service struct {
	store     Store
	publisher core.Publisher
	log       *zerolog.Logger
	now       func() time.Time

	lastSent atomic.Int64 // unix micros of the latest assigned send time
	// Send holds the stripe across append and publish so pushes follow append order.
	sendLocks [sendStripes]sync.Mutex
}

// New creates a conversation service. publisher may be nil to disable real-time pushes.
func New(st Store, publisher core.Publisher, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:     st,
		publisher: publisher,
		log:       logger,
		now:       time.Now,
	}
}

// ResolveOrCreate returns the single conversation between userA and userB, creating it on first contact.
func (s *Service) ResolveOrCreate(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	if userA == userB {
		return nil, ErrSelfConversation
	}

	key := store.DirectKey(userA, userB)
	conv, err := s.store.GetConversationByDirectKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}

	first, second := userA, userB
	if second < first {
		first, second = second, first
	}

	conv, err = s.store.CreateConversation(ctx, key, first, second)
	switch {
	case err == nil:
		metrics.ConversationsCreated.Inc()
		s.log.Info().Int64("conversation_id", conv.ID).Str("direct_key", key).Msg("conversation created")
		return conv, nil
	case errors.Is(err, store.ErrConflict):
		// Lost the first-contact race; the winner's row is the conversation.
		metrics.ConversationCreateConflicts.Inc()
		conv, err = s.store.GetConversationByDirectKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("re-read conversation after conflict: %w", err)
		}
		s.log.Debug().Int64("conversation_id", conv.ID).Str("direct_key", key).Msg("conversation create raced, using winner")
		return conv, nil
	default:
		return nil, fmt.Errorf("create conversation: %w", err)
	}
}

// Start opens (or reuses) a conversation from sender to recipient.
func (s *Service) Start(ctx context.Context, senderID, recipientID string) (*store.Conversation, error) {
	if senderID == recipientID {
		return nil, ErrSelfConversation
	}
	if _, err := s.store.GetUser(ctx, recipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}
	return s.ResolveOrCreate(ctx, senderID, recipientID)
}

// Get returns a conversation only if userID participates in it.
func (s *Service) Get(ctx context.Context, conversationID int64, userID string) (*store.Conversation, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *Service) conversation(ctx context.Context, conversationID int64) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// Append stores a new unread message from senderID.
func (s *Service) Append(ctx context.Context, conversationID int64, senderID, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	// Another instance may have stored a later send time; stay after it.
	last, err := s.store.LastMessageTime(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("last message time: %w", err)
	}

	msg := &store.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         s.nextSendTime(last),
		IsRead:         false,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	metrics.MessagesSent.Inc()
	return msg, nil
}

// Send appends a message and pushes it to everyone viewing the conversation.
// The push is best effort; its failure never affects the stored message.
func (s *Service) Send(ctx context.Context, conversationID int64, senderID, content string) (*store.Message, error) {
	mu := &s.sendLocks[uint64(conversationID)%sendStripes]
	mu.Lock()
	defer mu.Unlock()

	msg, err := s.Append(ctx, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, msg)
	return msg, nil
}

func (s *Service) broadcast(ctx context.Context, msg *store.Message) {
	if s.publisher == nil {
		return
	}

	senderName := msg.SenderID
	if user, err := s.store.GetUser(ctx, msg.SenderID); err == nil && user.DisplayName != "" {
		senderName = user.DisplayName
	}

	payload := core.MessagePayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Content:        msg.Content,
		SenderName:     senderName,
		SentAt:         msg.SentAt,
	}
	if err := s.publisher.Publish(core.ConversationGroup(msg.ConversationID), core.EventReceiveMessage, payload); err != nil {
		metrics.BroadcastsDropped.WithLabelValues("publish_error").Inc()
		s.log.Warn().Err(err).Int64("conversation_id", msg.ConversationID).Int64("message_id", msg.ID).Msg("broadcast failed")
	}
}

// History returns every message of the conversation, oldest first.
func (s *Service) History(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	if _, err := s.conversation(ctx, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// LatestActivityTime returns the newest send time, or the creation time of an empty conversation.
func (s *Service) LatestActivityTime(ctx context.Context, conversationID int64) (time.Time, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return time.Time{}, err
	}
	return s.latestActivity(ctx, conv)
}

func (s *Service) latestActivity(ctx context.Context, conv *store.Conversation) (time.Time, error) {
	last, err := s.store.LastMessageTime(ctx, conv.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("last message time: %w", err)
	}
	if last == nil {
		return conv.CreatedAt, nil
	}
	return *last, nil
}

// MarkRead flips every unread message in the conversation not written by readerID.
// It is idempotent and returns how many messages changed.
func (s *Service) MarkRead(ctx context.Context, conversationID int64, readerID string) (int64, error) {
	if _, err := s.conversation(ctx, conversationID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkMessagesRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if n > 0 {
		s.log.Debug().Int64("conversation_id", conversationID).Str("user_id", readerID).Int64("count", n).Msg("messages marked read")
	}
	return n, nil
}

// UnreadCount counts unread messages written by others across all of userID's conversations.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.store.CountUnreadMessages(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// UnreadCountInConversation counts unread messages written by others in one conversation.
// It returns ErrConversationNotFound for an unknown conversation.
func (s *Service) UnreadCountInConversation(ctx context.Context, conversationID int64, userID string) (int, error) {
	if _, err := s.conversation(ctx, conversationID); err != nil {
		return 0, err
	}
	n, err := s.store.CountUnreadInConversation(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("unread count in conversation: %w", err)
	}
	return n, nil
}

// ListForUser returns userID's conversations ordered by latest activity, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Summary, error) {
	conversations, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	summaries := make([]Summary, 0, len(conversations))
	for _, conv := range conversations {
		last, err := s.latestActivity(ctx, conv)
		if err != nil {
			return nil, err
		}
		unread, err := s.store.CountUnreadInConversation(ctx, conv.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("unread count in conversation: %w", err)
		}
		summaries = append(summaries, Summary{Conversation: conv, LastActivity: last, Unread: unread})
	}
	return summaries, nil
}

// Open marks the conversation read for userID and returns it with its history.
func (s *Service) Open(ctx context.Context, conversationID int64, userID string) (*View, error) {
	conv, err := s.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.MarkRead(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &View{Conversation: conv, Messages: messages}, nil
}

// nextSendTime returns a strictly increasing microsecond timestamp that is also
// later than after, when after is set.
func (s *Service) nextSendTime(after *time.Time) time.Time {
	now := s.now().UnixMicro()
	if after != nil && now <= after.UnixMicro() {
		now = after.UnixMicro() + 1
	}
	for {
		last := s.lastSent.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if s.lastSent.CompareAndSwap(last, next) {
			return time.UnixMicro(next).UTC()
		}
	}
}
