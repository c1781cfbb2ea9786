// Package comments adds event comments and rebuilds their reply trees.
package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/service/notifications"
	"github.com/vovakirdan/eventure-server/internal/store"
)

// MaxContentLength is the longest accepted comment, in characters.
const MaxContentLength = 1000

var (
	ErrEmptyContent   = errors.New("comment content is empty")
	ErrContentTooLong = errors.New("comment content is too long")
	ErrEventNotFound  = errors.New("event not found")
	ErrParentNotFound = errors.New("parent comment not found")
	ErrParentMismatch = errors.New("parent comment belongs to another event")
)

// Store is the persistence the comment service needs.
type Store interface {
	store.CommentStore
	store.UserStore
	GetEvent(ctx context.Context, id int64) (*store.Event, error)
}

// Notifier receives committed comments for fan-out.
type Notifier interface {
	CommentAdded(ctx context.Context, a notifications.CommentActivity) bool
}

type Service struct {
	store    Store
	notifier Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

// New creates a comment service. notifier may be nil.
func New(st Store, notifier Notifier, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, notifier: notifier, log: logger, now: time.Now}
}

// Add stores a comment on eventID, optionally as a reply to parentID, and then
// runs the comment fan-out rule.
func (s *Service) Add(ctx context.Context, eventID int64, userID, content string, parentID *int64) (*store.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}

	ev, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var parent *store.Comment
	if parentID != nil {
		parent, err = s.store.GetComment(ctx, *parentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, fmt.Errorf("get parent comment: %w", err)
		}
		if parent.EventID != eventID {
			return nil, ErrParentMismatch
		}
	}

	c := &store.Comment{
		EventID:         eventID,
		UserID:          userID,
		Content:         content,
		CreatedAt:       s.now().UTC(),
		ParentCommentID: parentID,
	}
	if err := s.store.SaveComment(ctx, c); err != nil {
		return nil, fmt.Errorf("save comment: %w", err)
	}
	s.log.Debug().Int64("event_id", eventID).Int64("comment_id", c.ID).Str("user_id", userID).Msg("comment added")

	if s.notifier != nil {
		s.notifier.CommentAdded(ctx, notifications.CommentActivity{
			Comment:   c,
			Event:     ev,
			Parent:    parent,
			ActorName: s.authorName(ctx, userID, nil),
		})
	}
	return c, nil
}

// Threaded returns the comments of eventID as a reply forest in creation order.
func (s *Service) Threaded(ctx context.Context, eventID int64) ([]*Node, error) {
	if _, err := s.event(ctx, eventID); err != nil {
		return nil, err
	}

	list, err := s.store.ListComments(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	roots := Thread(list)

	names := make(map[string]string)
	var fill func([]*Node)
	fill = func(nodes []*Node) {
		for _, n := range nodes {
			n.AuthorName = s.authorName(ctx, n.Comment.UserID, names)
			fill(n.Replies)
		}
	}
	fill(roots)
	return roots, nil
}

func (s *Service) event(ctx context.Context, eventID int64) (*store.Event, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (s *Service) authorName(ctx context.Context, userID string, cache map[string]string) string {
	if name, ok := cache[userID]; ok {
		return name
	}
	name := userID
	if u, err := s.store.GetUser(ctx, userID); err == nil && u.DisplayName != "" {
		name = u.DisplayName
	}
	if cache != nil {
		cache[userID] = name
	}
	return name
}
