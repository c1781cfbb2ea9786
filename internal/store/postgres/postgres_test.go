package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/eventure-server/internal/store"
)

// Runs against a real server only when EVENTURE_TEST_DATABASE_URL is set.
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	url := os.Getenv("EVENTURE_TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("EVENTURE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUsers(t *testing.T, s *PostgresStore, n int) []string {
	t.Helper()

	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
		if err := s.UpsertUser(context.Background(), ids[i], "user"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	return ids
}

func TestConcurrentCreateConversation(t *testing.T) {
	s := newTestStore(t)
	users := seedUsers(t, s, 2)
	key := store.DirectKey(users[0], users[1])
	ctx := context.Background()

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateConversation(ctx, key, users[0], users[1])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || conflicts != workers-1 {
		t.Fatalf("created=%d conflicts=%d, want exactly one winner", created, conflicts)
	}

	conv, err := s.GetConversationByDirectKey(ctx, key)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !conv.HasParticipant(users[0]) || !conv.HasParticipant(users[1]) {
		t.Fatalf("participants missing: %v", conv.Participants)
	}
}

func TestMessageReadFlow(t *testing.T) {
	s := newTestStore(t)
	users := seedUsers(t, s, 2)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, store.DirectKey(users[0], users[1]), users[0], users[1])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := range 3 {
		if err := s.SaveMessage(ctx, &store.Message{
			ConversationID: conv.ID,
			SenderID:       users[0],
			Content:        "m",
			SentAt:         time.Now().Add(time.Duration(i) * time.Millisecond),
		}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if n, _ := s.CountUnreadMessages(ctx, users[1]); n != 3 {
		t.Fatalf("unread = %d, want 3", n)
	}
	if changed, err := s.MarkMessagesRead(ctx, conv.ID, users[1]); err != nil || changed != 3 {
		t.Fatalf("mark read changed %d, %v", changed, err)
	}
	if n, _ := s.CountUnreadMessages(ctx, users[1]); n != 0 {
		t.Fatalf("unread after read = %d", n)
	}
}
