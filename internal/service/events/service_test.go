package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/eventure-server/internal/service/notifications"
	"github.com/vovakirdan/eventure-server/internal/store"
	"github.com/vovakirdan/eventure-server/internal/store/sqlite"
)

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) EventChanged(context.Context, *store.Event, *store.Event, []string, string) int {
	n.calls++
	return 0
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	for _, u := range []string{"org", "p1", "p2", "p3"} {
		if err := st.UpsertUser(context.Background(), u, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	return st
}

func details(limit *int) Details {
	start := time.Date(2026, 8, 10, 17, 0, 0, 0, time.UTC)
	return Details{
		Title:           "Hike",
		StartTime:       start,
		EndTime:         start.Add(4 * time.Hour),
		Location:        "Trailhead",
		MaxParticipants: limit,
	}
}

func intPtr(v int) *int { return &v }

func TestCreateAndGet(t *testing.T) {
	svc := New(newTestStore(t), nil, nil)
	ctx := context.Background()

	ev, err := svc.Create(ctx, "org", details(nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Hike" || got.OrganizerID != "org" || !got.StartTime.Equal(ev.StartTime) {
		t.Fatalf("unexpected event: %+v", got)
	}

	if _, err := svc.Get(ctx, ev.ID+1); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := New(newTestStore(t), nil, nil)

	tests := []struct {
		name   string
		mutate func(d *Details)
		want   error
	}{
		{name: "empty title", mutate: func(d *Details) { d.Title = "  " }, want: ErrEmptyTitle},
		{name: "ends before start", mutate: func(d *Details) { d.EndTime = d.StartTime.Add(-time.Hour) }, want: ErrInvalidTimes},
		{name: "zero limit", mutate: func(d *Details) { d.MaxParticipants = intPtr(0) }, want: ErrInvalidLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := details(nil)
			tt.mutate(&d)
			if _, err := svc.Create(context.Background(), "org", d); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestJoinLeave(t *testing.T) {
	svc := New(newTestStore(t), nil, nil)
	ctx := context.Background()

	ev, err := svc.Create(ctx, "org", details(intPtr(2)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Join(ctx, ev.ID, "p1"); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if err := svc.Join(ctx, ev.ID, "p1"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	if err := svc.Join(ctx, ev.ID, "p2"); err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if err := svc.Join(ctx, ev.ID, "p3"); !errors.Is(err, ErrEventFull) {
		t.Fatalf("expected ErrEventFull, got %v", err)
	}

	if err := svc.Leave(ctx, ev.ID, "p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := svc.Leave(ctx, ev.ID, "p1"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if err := svc.Join(ctx, ev.ID, "p3"); err != nil {
		t.Fatalf("join p3 after a slot freed: %v", err)
	}

	participants, err := svc.Participants(ctx, ev.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", participants)
	}

	if err := svc.Join(ctx, ev.ID+5, "p1"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestUpdateRequiresOrganizer(t *testing.T) {
	notifier := &countingNotifier{}
	svc := New(newTestStore(t), notifier, nil)
	ctx := context.Background()

	ev, err := svc.Create(ctx, "org", details(nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	d := details(nil)
	d.Title = "Hijacked"
	if _, err := svc.Update(ctx, ev.ID, "p1", d); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if notifier.calls != 0 {
		t.Fatalf("rejected update must not fan out")
	}

	got, _ := svc.Get(ctx, ev.ID)
	if got.Title != "Hike" {
		t.Fatalf("event was modified by a non-organizer: %q", got.Title)
	}
}

func TestUpdateTitleAndLocationSendsOneNotificationPerParticipant(t *testing.T) {
	st := newTestStore(t)
	dispatcher := notifications.New(st, nil)
	svc := New(st, dispatcher, nil)
	ctx := context.Background()

	ev, err := svc.Create(ctx, "org", details(nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range []string{"p1", "p2"} {
		if err := svc.Join(ctx, ev.ID, p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}

	d := details(nil)
	d.Title = "Sunset hike"
	d.Location = "North ridge"
	updated, err := svc.Update(ctx, ev.ID, "org", d)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Sunset hike" || updated.Location != "North ridge" {
		t.Fatalf("unexpected updated event: %+v", updated)
	}

	for _, p := range []string{"p1", "p2"} {
		list, err := dispatcher.All(ctx, p)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("%s expected exactly 1 notification, got %d", p, len(list))
		}
		lines := 0
		for _, line := range strings.Split(list[0].Message, "\n") {
			if strings.Contains(line, " changed from ") {
				lines++
			}
		}
		if lines != 2 {
			t.Fatalf("%s expected 2 change lines, got %d in %q", p, lines, list[0].Message)
		}
	}

	if n, _ := dispatcher.UnreadCount(ctx, "org"); n != 0 {
		t.Fatalf("organizer should not be notified of their own edit, got %d", n)
	}
	if n, _ := dispatcher.UnreadCount(ctx, "p3"); n != 0 {
		t.Fatalf("non-participant should not be notified, got %d", n)
	}
}

func TestUpdateWithoutWatchedChangesSendsNothing(t *testing.T) {
	st := newTestStore(t)
	dispatcher := notifications.New(st, nil)
	svc := New(st, dispatcher, nil)
	ctx := context.Background()

	ev, err := svc.Create(ctx, "org", details(nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Join(ctx, ev.ID, "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	d := details(intPtr(20))
	d.Description = "Bring water"
	if _, err := svc.Update(ctx, ev.ID, "org", d); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n, _ := dispatcher.UnreadCount(ctx, "p1"); n != 0 {
		t.Fatalf("description and limit changes are not announced, got %d", n)
	}
}
