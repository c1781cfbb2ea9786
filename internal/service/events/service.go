// Package events is the event collaborator: it owns event records and their
// participant lists and triggers the edit fan-out after an update commits.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/store"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrForbidden     = errors.New("only the organizer can modify the event")
	ErrEmptyTitle    = errors.New("event title is empty")
	ErrInvalidTimes  = errors.New("event must end after it starts")
	ErrInvalidLimit  = errors.New("participant limit must be positive")
	ErrAlreadyJoined = errors.New("already joined")
	ErrNotJoined     = errors.New("not a participant")
	ErrEventFull     = errors.New("event is full")
)

// Notifier receives committed event edits for fan-out.
type Notifier interface {
	EventChanged(ctx context.Context, before, after *store.Event, participants []string, actorID string) int
}

// Details are the editable fields of an event.
type Details struct {
	Title           string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	Location        string
	MaxParticipants *int
}

func (d Details) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrEmptyTitle
	}
	if !d.EndTime.After(d.StartTime) {
		return ErrInvalidTimes
	}
	if d.MaxParticipants != nil && *d.MaxParticipants <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

func (d Details) apply(ev *store.Event) {
	ev.Title = strings.TrimSpace(d.Title)
	ev.Description = d.Description
	ev.StartTime = d.StartTime.UTC()
	ev.EndTime = d.EndTime.UTC()
	ev.Location = d.Location
	ev.MaxParticipants = d.MaxParticipants
}

type Service struct {
	store    store.EventStore
	notifier Notifier
	log      *zerolog.Logger
}

// New creates an event service. notifier may be nil.
func New(st store.EventStore, notifier Notifier, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, notifier: notifier, log: logger}
}

// Create stores a new event organized by organizerID.
func (s *Service) Create(ctx context.Context, organizerID string, d Details) (*store.Event, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	ev := &store.Event{OrganizerID: organizerID, CreatedAt: time.Now().UTC()}
	d.apply(ev)
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.log.Info().Int64("event_id", ev.ID).Str("user_id", organizerID).Msg("event created")
	return ev, nil
}

func (s *Service) Get(ctx context.Context, eventID int64) (*store.Event, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// Update overwrites the event's details. Only the organizer may update. Once the
// change is stored, every participant except the actor gets one aggregated notification.
func (s *Service) Update(ctx context.Context, eventID int64, actorID string, d Details) (*store.Event, error) {
	before, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if before.OrganizerID != actorID {
		return nil, ErrForbidden
	}
	if err := d.validate(); err != nil {
		return nil, err
	}

	after := *before
	d.apply(&after)
	if err := s.store.UpdateEvent(ctx, &after); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	s.log.Info().Int64("event_id", eventID).Str("user_id", actorID).Msg("event updated")

	if s.notifier != nil {
		participants, err := s.store.ListEventParticipants(ctx, eventID)
		if err != nil {
			s.log.Error().Err(err).Int64("event_id", eventID).Msg("event change fan-out skipped")
		} else {
			s.notifier.EventChanged(ctx, before, &after, participants, actorID)
		}
	}
	return &after, nil
}

// Join adds userID to the event's participants, honoring the participant limit.
func (s *Service) Join(ctx context.Context, eventID int64, userID string) error {
	ev, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}

	if ev.MaxParticipants != nil {
		participants, err := s.store.ListEventParticipants(ctx, eventID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		for _, p := range participants {
			if p == userID {
				return ErrAlreadyJoined
			}
		}
		if len(participants) >= *ev.MaxParticipants {
			return ErrEventFull
		}
	}

	if err := s.store.AddEventParticipant(ctx, eventID, userID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrAlreadyJoined
		}
		return fmt.Errorf("join event: %w", err)
	}
	s.log.Debug().Int64("event_id", eventID).Str("user_id", userID).Msg("joined event")
	return nil
}

func (s *Service) Leave(ctx context.Context, eventID int64, userID string) error {
	if _, err := s.Get(ctx, eventID); err != nil {
		return err
	}
	if err := s.store.RemoveEventParticipant(ctx, eventID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotJoined
		}
		return fmt.Errorf("leave event: %w", err)
	}
	s.log.Debug().Int64("event_id", eventID).Str("user_id", userID).Msg("left event")
	return nil
}

// Participants lists the event's participants in join order.
func (s *Service) Participants(ctx context.Context, eventID int64) ([]string, error) {
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}
	participants, err := s.store.ListEventParticipants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}
