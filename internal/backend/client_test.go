package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/gosuda/pulse/internal/auth"
	"github.com/gosuda/pulse/internal/backend"
	"github.com/gosuda/pulse/internal/domain"
)

// ---------------------------------------------------------------------------
// Test backend
// ---------------------------------------------------------------------------

type fakeBackend struct {
	mu       sync.Mutex
	auth     []string
	queries  []string
	routes   map[string]string
	statuses map[string]int
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()

	fb := &fakeBackend{routes: map[string]string{}, statuses: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.auth = append(fb.auth, r.Header.Get("Authorization"))
		fb.queries = append(fb.queries, r.URL.RawQuery)
		body, ok := fb.routes[r.URL.Path]
		status := fb.statuses[r.URL.Path]
		fb.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Projeto não encontrado"}`))
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return fb, srv
}

func (fb *fakeBackend) handle(path, body string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.routes[path] = body
}

func (fb *fakeBackend) fail(path string, status int, body string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.routes[path] = body
	fb.statuses[path] = status
}

func (fb *fakeBackend) lastAuth() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if len(fb.auth) == 0 {
		return ""
	}
	return fb.auth[len(fb.auth)-1]
}

func newClient(t *testing.T, srv *httptest.Server, ts oauth2.TokenSource) *backend.Client {
	t.Helper()

	c, err := backend.New(backend.Options{
		BaseURL:     srv.URL + "/",
		Timeout:     5 * time.Second,
		TokenSource: ts,
		Location:    time.UTC,
	})
	require.NoError(t, err)
	return c
}

func staticSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

func TestClient_ListProjects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{
			name: "bare array",
			body: `[{"id":1,"name":"Alpha","description":null,"owner_email":"a@x.io","member_count":3,"created_at":"2025-03-01T10:00:00","updated_at":"2025-03-02T10:00:00"}]`,
		},
		{
			name: "envelope",
			body: `{"success":true,"message":"ok","data":[{"id":1,"name":"Alpha","owner_email":"a@x.io","member_count":3,"created_at":"2025-03-01T10:00:00Z","updated_at":"2025-03-02T10:00:00Z"}]}`,
		},
		{
			name: "keyed object",
			body: `{"projects":[{"id":1,"name":"Alpha","owner_email":"a@x.io","member_count":3,"created_at":"2025-03-01T10:00:00","updated_at":"2025-03-02T10:00:00"}],"total":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb, srv := newFakeBackend(t)
			fb.handle("/api/projects", tt.body)

			projects, err := newClient(t, srv, staticSource("tok")).ListProjects(t.Context())
			require.NoError(t, err)
			require.Len(t, projects, 1)

			p := projects[0]
			assert.Equal(t, int64(1), p.ID)
			assert.Equal(t, "Alpha", p.Name)
			assert.Equal(t, 3, p.MemberCount)
			assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), p.CreatedAt.UTC())
			assert.Equal(t, "Bearer tok", fb.lastAuth())
		})
	}
}

func TestClient_ListColumns(t *testing.T) {
	t.Parallel()

	fb, srv := newFakeBackend(t)
	fb.handle("/api/projects/5/columns", `{"columns":[
		{"id":10,"title":"A fazer","color":"#6366f1","position":0,"project_id":5},
		{"id":11,"title":"Fazendo","color":null,"position":1}
	],"total":2}`)

	cols, err := newClient(t, srv, nil).ListColumns(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, cols, 2)

	assert.Equal(t, &domain.Column{ID: 10, Title: "A fazer", Color: "#6366f1", Position: 0, ProjectID: 5}, cols[0])
	assert.Equal(t, int64(5), cols[1].ProjectID, "missing project id is filled from the request")
	assert.Empty(t, cols[1].Color)
	assert.Empty(t, fb.lastAuth(), "no token source, no header")
}

func TestClient_ListTasks(t *testing.T) {
	t.Parallel()

	fb, srv := newFakeBackend(t)
	fb.handle("/api/projects/5/cards", `{"cards":[
		{"id":1,"title":"Deploy","description":"prod","priority":"URGENT","status":"active","position":0,
		 "due_date":"2025-03-10T00:00:00","completed_at":null,"created_at":"2025-03-01T10:00:00.123456",
		 "updated_at":"2025-03-01T10:00:00","column_id":10,"project_id":5,
		 "assignees":[{"id":3,"full_name":"Ana Souza","email":"ana@x.io"}]},
		{"id":2,"title":"Docs","priority":"whatever","status":"active","position":1,
		 "due_date":"2025-03-12","created_at":"2025-03-01T10:00:00","updated_at":"2025-03-01T10:00:00","column_id":12}
	],"total":2}`)

	tasks, err := newClient(t, srv, staticSource("tok")).ListTasks(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	first := tasks[0]
	assert.Equal(t, domain.PriorityUrgent, first.Priority)
	assert.Equal(t, "prod", first.Description)
	require.NotNil(t, first.DueDate)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), *first.DueDate)
	assert.Nil(t, first.CompletedAt)
	assert.Equal(t, []domain.Assignee{{ID: 3, Name: "Ana Souza", Email: "ana@x.io"}}, first.Assignees)

	second := tasks[1]
	assert.Equal(t, domain.PriorityMedium, second.Priority, "unknown priority falls back to medium")
	assert.Equal(t, int64(5), second.ProjectID)
	require.NotNil(t, second.DueDate)
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), *second.DueDate)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, "status=active", fb.queries[0])
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail":"Token inválido"}`, wantErr: domain.ErrUnauthorized, wantMsg: "Token inválido"},
		{name: "forbidden", status: http.StatusForbidden, body: `{}`, wantErr: domain.ErrUnauthorized},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: backend.ErrUnexpectedStatus, wantMsg: "500"},
		{name: "envelope failure", status: http.StatusOK, body: `{"success":false,"message":"falhou","data":null}`, wantErr: backend.ErrUnexpectedStatus, wantMsg: "falhou"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb, srv := newFakeBackend(t)
			fb.fail("/api/projects", tt.status, tt.body)

			_, err := newClient(t, srv, staticSource("tok")).ListProjects(t.Context())
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_NotFound(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)

	_, err := newClient(t, srv, nil).ListColumns(t.Context(), 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "Projeto não encontrado")
}

func TestClient_MissingCredentialIsUnauthorized(t *testing.T) {
	t.Parallel()

	fb, srv := newFakeBackend(t)
	fb.handle("/api/projects", `[]`)

	_, err := newClient(t, srv, auth.NewCredentials("", "").TokenSource()).ListProjects(t.Context())
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Empty(t, fb.auth, "request never left the client")
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	fb, srv := newFakeBackend(t)
	fb.handle("/api/projects", `[]`)

	c, err := backend.New(backend.Options{BaseURL: srv.URL, RPS: 0.001, Burst: 1})
	require.NoError(t, err)

	_, err = c.ListProjects(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListProjects(ctx)
	require.Error(t, err, "second call exceeds the budget before the deadline")
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"", "localhost:8000", "/api"} {
		_, err := backend.New(backend.Options{BaseURL: base})
		assert.Error(t, err, base)
	}
}
