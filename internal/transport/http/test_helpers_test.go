package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/auth"
	"github.com/vovakirdan/eventure-server/internal/config"
	"github.com/vovakirdan/eventure-server/internal/core"
	"github.com/vovakirdan/eventure-server/internal/service/comments"
	"github.com/vovakirdan/eventure-server/internal/service/conversations"
	"github.com/vovakirdan/eventure-server/internal/service/events"
	"github.com/vovakirdan/eventure-server/internal/service/notifications"
	"github.com/vovakirdan/eventure-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	store  *sqlite.SQLiteStore
	auth   *auth.Service
}

// newTestEnv wires the full HTTP stack over an in-memory SQLite store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.Nop()

	hub := core.NewHub(&disabledLogger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.ReadHeaderTimeout = time.Second
	cfg.WSOriginPatterns = []string{"app.eventure.test"}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	dispatcher := notifications.New(st, &disabledLogger)

	svc := Services{
		Auth:          authService,
		Conversations: conversations.New(st, hub, &disabledLogger),
		Notifications: dispatcher,
		Events:        events.New(st, dispatcher, &disabledLogger),
		Comments:      comments.New(st, dispatcher, &disabledLogger),
	}

	ts := httptest.NewServer(NewRouter(hub, svc, &cfg, &disabledLogger))
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: st, auth: authService}
}

// login mints a token and authenticates once so the user exists in the mirror.
func (e *testEnv) login(t *testing.T, userID, name string) string {
	t.Helper()

	token, err := e.auth.IssueToken(userID, name)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := e.auth.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return token
}

// do sends a JSON request and decodes the response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func expectStatus(t *testing.T, got, want int, what string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: status %d, want %d", what, got, want)
	}
}
