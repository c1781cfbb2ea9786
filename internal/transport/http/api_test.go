package http

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "", nil, nil)

	resp, err := env.server.Client().Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "eventure_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "bad token", header: "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := env.server.Client().Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			expectStatus(t, resp.StatusCode, http.StatusUnauthorized, tt.name)
		})
	}

	token := env.login(t, "u1", "Uma")
	var me MeResponse
	expectStatus(t, env.do(t, http.MethodGet, "/api/me", token, nil, &me), http.StatusOK, "me")
	if me.ID != "u1" || me.DisplayName != "Uma" {
		t.Fatalf("unexpected me: %+v", me)
	}
}

func TestConversationFlow(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.login(t, "u1", "Uma")
	u2 := env.login(t, "u2", "Vic")

	var conv ConversationResponse
	expectStatus(t, env.do(t, http.MethodPost, "/api/conversations", u1,
		StartConversationRequest{RecipientID: "u2"}, &conv), http.StatusOK, "start")

	var again ConversationResponse
	expectStatus(t, env.do(t, http.MethodPost, "/api/conversations", u2,
		StartConversationRequest{RecipientID: "u1"}, &again), http.StatusOK, "start reversed")
	if again.ID != conv.ID {
		t.Fatalf("expected one conversation per pair, got %d and %d", conv.ID, again.ID)
	}

	msgPath := fmt.Sprintf("/api/conversations/%d/messages", conv.ID)
	for _, text := range []string{"hello", "are you there?"} {
		expectStatus(t, env.do(t, http.MethodPost, msgPath, u1, SendMessageRequest{Content: text}, nil),
			http.StatusCreated, "send")
	}

	var count CountResponse
	env.do(t, http.MethodGet, "/api/messages/unread-count", u2, nil, &count)
	if count.Count != 2 {
		t.Fatalf("expected u2 to have 2 unread, got %d", count.Count)
	}

	var list []ConversationResponse
	env.do(t, http.MethodGet, "/api/conversations", u2, nil, &list)
	if len(list) != 1 || list[0].Unread == nil || *list[0].Unread != 2 {
		t.Fatalf("unexpected conversation list: %+v", list)
	}

	var view ConversationViewResponse
	expectStatus(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), u2, nil, &view),
		http.StatusOK, "open")
	if len(view.Messages) != 2 || view.Messages[0].Content != "hello" || view.Messages[1].Content != "are you there?" {
		t.Fatalf("unexpected history: %+v", view.Messages)
	}
	for _, m := range view.Messages {
		if !m.IsRead {
			t.Fatalf("opened messages must be read: %+v", m)
		}
	}

	env.do(t, http.MethodGet, "/api/messages/unread-count", u2, nil, &count)
	if count.Count != 0 {
		t.Fatalf("expected 0 unread after open, got %d", count.Count)
	}
}

func TestConversationErrors(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.login(t, "u1", "Uma")
	env.login(t, "u2", "Vic")
	outsider := env.login(t, "u3", "Wes")

	expectStatus(t, env.do(t, http.MethodPost, "/api/conversations", u1,
		StartConversationRequest{RecipientID: "u1"}, nil), http.StatusBadRequest, "self conversation")
	expectStatus(t, env.do(t, http.MethodPost, "/api/conversations", u1,
		StartConversationRequest{RecipientID: "ghost"}, nil), http.StatusNotFound, "unknown recipient")

	var conv ConversationResponse
	env.do(t, http.MethodPost, "/api/conversations", u1, StartConversationRequest{RecipientID: "u2"}, &conv)

	msgPath := fmt.Sprintf("/api/conversations/%d/messages", conv.ID)
	expectStatus(t, env.do(t, http.MethodPost, msgPath, u1, SendMessageRequest{Content: "   "}, nil),
		http.StatusBadRequest, "blank message")
	expectStatus(t, env.do(t, http.MethodPost, msgPath, outsider, SendMessageRequest{Content: "hi"}, nil),
		http.StatusNotFound, "outsider send")
	expectStatus(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), outsider, nil, nil),
		http.StatusNotFound, "outsider open")
	expectStatus(t, env.do(t, http.MethodGet, "/api/conversations/999", u1, nil, nil),
		http.StatusNotFound, "missing conversation")
	expectStatus(t, env.do(t, http.MethodGet, "/api/conversations/abc", u1, nil, nil),
		http.StatusBadRequest, "bad id")
}

func TestEventEditAndCommentNotifications(t *testing.T) {
	env := newTestEnv(t)
	org := env.login(t, "org", "Olga")
	p1 := env.login(t, "p1", "Pat")
	p2 := env.login(t, "p2", "Quinn")

	start := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	var ev EventResponse
	expectStatus(t, env.do(t, http.MethodPost, "/api/events", org, EventRequest{
		Title: "Quiz night", StartTime: start, EndTime: start.Add(2 * time.Hour), Location: "Pub",
	}, &ev), http.StatusCreated, "create event")

	for _, token := range []string{p1, p2} {
		expectStatus(t, env.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/join", ev.ID), token, nil, nil),
			http.StatusNoContent, "join")
	}

	expectStatus(t, env.do(t, http.MethodPut, fmt.Sprintf("/api/events/%d", ev.ID), p1, EventRequest{
		Title: "Hijack", StartTime: start, EndTime: start.Add(time.Hour),
	}, nil), http.StatusForbidden, "non-organizer update")

	expectStatus(t, env.do(t, http.MethodPut, fmt.Sprintf("/api/events/%d", ev.ID), org, EventRequest{
		Title: "Trivia night", StartTime: start, EndTime: start.Add(2 * time.Hour), Location: "Library",
	}, nil), http.StatusOK, "update")

	for _, token := range []string{p1, p2} {
		var list []NotificationResponse
		env.do(t, http.MethodGet, "/api/notifications/unread", token, nil, &list)
		if len(list) != 1 {
			t.Fatalf("expected one aggregated notification, got %d", len(list))
		}
		if !strings.Contains(list[0].Message, "Title changed") || !strings.Contains(list[0].Message, "Location changed") {
			t.Fatalf("notification should list both changes: %q", list[0].Message)
		}
	}

	var root CommentResponse
	expectStatus(t, env.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/comments", ev.ID), p1,
		AddCommentRequest{Content: "Can I bring a friend?"}, &root), http.StatusCreated, "comment")
	expectStatus(t, env.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/comments", ev.ID), p2,
		AddCommentRequest{Content: "Me too?", ParentCommentID: &root.ID}, nil), http.StatusCreated, "reply")

	var count CountResponse
	env.do(t, http.MethodGet, "/api/notifications/unread-count", org, nil, &count)
	if count.Count != 1 {
		t.Fatalf("organizer should be notified of the top-level comment, got %d", count.Count)
	}
	env.do(t, http.MethodGet, "/api/notifications/unread-count", p1, nil, &count)
	if count.Count != 2 {
		t.Fatalf("p1 should have the edit and the reply notifications, got %d", count.Count)
	}

	var thread []CommentResponse
	expectStatus(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/events/%d/comments", ev.ID), p2, nil, &thread),
		http.StatusOK, "thread")
	if len(thread) != 1 || len(thread[0].Replies) != 1 || thread[0].Replies[0].AuthorName != "Quinn" {
		t.Fatalf("unexpected thread: %+v", thread)
	}

	var updated MarkAllReadResponse
	expectStatus(t, env.do(t, http.MethodPost, "/api/notifications/read-all", p1, nil, &updated),
		http.StatusOK, "read all")
	if updated.Updated != 2 {
		t.Fatalf("expected 2 notifications marked read, got %d", updated.Updated)
	}
}

func TestNotificationMarkRead(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice", "Alice")
	bob := env.login(t, "bob", "Bob")

	start := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	var ev EventResponse
	env.do(t, http.MethodPost, "/api/events", alice, EventRequest{Title: "Run", StartTime: start, EndTime: start.Add(time.Hour)}, &ev)
	env.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/comments", ev.ID), bob, AddCommentRequest{Content: "in"}, nil)

	var list []NotificationResponse
	env.do(t, http.MethodGet, "/api/notifications", alice, nil, &list)
	if len(list) != 1 || list[0].IsRead {
		t.Fatalf("unexpected notifications: %+v", list)
	}
	path := fmt.Sprintf("/api/notifications/%d/read", list[0].ID)

	expectStatus(t, env.do(t, http.MethodPost, path, bob, nil, nil), http.StatusNoContent, "foreign mark read")
	var count CountResponse
	env.do(t, http.MethodGet, "/api/notifications/unread-count", alice, nil, &count)
	if count.Count != 1 {
		t.Fatalf("another user must not mark alice's notification read")
	}

	for range 2 {
		expectStatus(t, env.do(t, http.MethodPost, path, alice, nil, nil), http.StatusNoContent, "mark read")
	}
	expectStatus(t, env.do(t, http.MethodPost, "/api/notifications/424242/read", alice, nil, nil),
		http.StatusNoContent, "unknown id")

	env.do(t, http.MethodGet, "/api/notifications/unread-count", alice, nil, &count)
	if count.Count != 0 {
		t.Fatalf("expected 0 unread, got %d", count.Count)
	}
}
