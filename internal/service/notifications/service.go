// Package notifications persists user-addressed notifications and implements
// the comment and event-edit fan-out rules.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/metrics"
	"github.com/vovakirdan/eventure-server/internal/store"
)

var (
	ErrEmptyRecipient = errors.New("notification recipient is empty")
	ErrEmptyBody      = errors.New("notification body is empty")
)

// Notification kinds, used as metric labels.
const (
	KindDirect  = "direct"
	KindComment = "comment"
	KindReply   = "reply"
	KindEdit    = "event_edit"
)

const changeTimeLayout = "Jan 2, 2006 15:04 MST"

// Store is the persistence the dispatcher needs.
type Store interface {
	store.NotificationStore
	store.UserStore
}

// Service is the notification dispatcher.
type Service struct {
	store Store
	log   *zerolog.Logger
	now   func() time.Time
}

// New creates a notification dispatcher.
func New(st Store, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, log: logger, now: time.Now}
}

// Notify persists one unread notification for recipientID.
func (s *Service) Notify(ctx context.Context, recipientID, body string, eventID *int64) (*store.Notification, error) {
	if recipientID == "" {
		return nil, ErrEmptyRecipient
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	n := &store.Notification{
		UserID:    recipientID,
		Message:   body,
		CreatedAt: s.now().UTC(),
		EventID:   eventID,
	}
	if err := s.store.SaveNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}
	return n, nil
}

// dispatch runs Notify and absorbs its failure. It reports whether the notification was stored.
func (s *Service) dispatch(ctx context.Context, kind, recipientID, body string, eventID *int64) bool {
	n, err := s.Notify(ctx, recipientID, body, eventID)
	if err != nil {
		metrics.NotificationFailures.WithLabelValues(kind).Inc()
		ev := s.log.Error().Err(err).Str("kind", kind).Str("user_id", recipientID)
		if eventID != nil {
			ev = ev.Int64("event_id", *eventID)
		}
		ev.Msg("notification dropped")
		return false
	}

	metrics.NotificationsCreated.WithLabelValues(kind).Inc()
	s.log.Debug().Int64("notification_id", n.ID).Str("kind", kind).Str("user_id", recipientID).Msg("notification created")
	return true
}

// All returns every notification of userID, newest first.
func (s *Service) All(ctx context.Context, userID string) ([]*store.Notification, error) {
	list, err := s.store.ListNotifications(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// Unread returns the unread notifications of userID, newest first.
func (s *Service) Unread(ctx context.Context, userID string) ([]*store.Notification, error) {
	list, err := s.store.ListNotifications(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	return list, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead flips the read flag of a notification. Unknown or already read ids are a no-op.
func (s *Service) MarkRead(ctx context.Context, notificationID int64) error {
	if err := s.store.MarkNotificationRead(ctx, notificationID, ""); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkReadFor is MarkRead restricted to notifications addressed to userID.
func (s *Service) MarkReadFor(ctx context.Context, userID string, notificationID int64) error {
	if err := s.store.MarkNotificationRead(ctx, notificationID, userID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead flips every unread notification of userID and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

// CommentActivity describes a comment that has just been committed.
type CommentActivity struct {
	Comment   *store.Comment
	Event     *store.Event
	Parent    *store.Comment // nil for a top-level comment
	ActorName string
}

// CommentAdded applies the comment fan-out rule. A top-level comment notifies the
// organizer, a reply notifies the parent's author; the actor is never notified.
// It reports whether a notification was stored.
func (s *Service) CommentAdded(ctx context.Context, a CommentActivity) bool {
	if a.Comment == nil || a.Event == nil {
		return false
	}

	actor := a.Comment.UserID
	name := a.ActorName
	if name == "" {
		name = s.displayName(ctx, actor)
	}
	eventID := a.Event.ID

	if a.Parent == nil {
		if a.Event.OrganizerID == "" || a.Event.OrganizerID == actor {
			return false
		}
		body := fmt.Sprintf("%s commented on your event %q.", name, a.Event.Title)
		return s.dispatch(ctx, KindComment, a.Event.OrganizerID, body, &eventID)
	}

	if a.Parent.UserID == actor {
		return false
	}
	body := fmt.Sprintf("%s replied to your comment on %q.", name, a.Event.Title)
	return s.dispatch(ctx, KindReply, a.Parent.UserID, body, &eventID)
}

// EventChanged applies the event-edit fan-out rule: one aggregated notification per
// participant when title, start, end or location changed. The acting user is skipped.
// It returns the number of notifications stored.
func (s *Service) EventChanged(ctx context.Context, before, after *store.Event, participants []string, actorID string) int {
	lines := ChangeLines(before, after)
	if len(lines) == 0 {
		return 0
	}

	body := fmt.Sprintf("Event %q was updated:\n%s", after.Title, strings.Join(lines, "\n"))
	eventID := after.ID

	seen := make(map[string]struct{}, len(participants))
	sent := 0
	for _, userID := range participants {
		if userID == actorID {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		if s.dispatch(ctx, KindEdit, userID, body, &eventID) {
			sent++
		}
	}

	s.log.Info().Int64("event_id", eventID).Int("changes", len(lines)).Int("notified", sent).Msg("event change fan-out")
	return sent
}

// ChangeLines returns one human-readable line per changed watched field.
func ChangeLines(before, after *store.Event) []string {
	if before == nil || after == nil {
		return nil
	}

	var lines []string
	if before.Title != after.Title {
		lines = append(lines, fmt.Sprintf("Title changed from %q to %q.", before.Title, after.Title))
	}
	if !before.StartTime.Equal(after.StartTime) {
		lines = append(lines, fmt.Sprintf("Start time changed from %s to %s.",
			before.StartTime.UTC().Format(changeTimeLayout), after.StartTime.UTC().Format(changeTimeLayout)))
	}
	if !before.EndTime.Equal(after.EndTime) {
		lines = append(lines, fmt.Sprintf("End time changed from %s to %s.",
			before.EndTime.UTC().Format(changeTimeLayout), after.EndTime.UTC().Format(changeTimeLayout)))
	}
	if before.Location != after.Location {
		lines = append(lines, fmt.Sprintf("Location changed from %q to %q.", before.Location, after.Location))
	}
	return lines
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil || u.DisplayName == "" {
		return userID
	}
	return u.DisplayName
}
