package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-agent/backend/internal/state"
	"discord-agent/backend/internal/store"
)

const testSecret = "s3cret"

type recordingRunner struct {
	mu    sync.Mutex
	tasks []state.Task
	err   error
}

func (r *recordingRunner) Run(guildID string, task state.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return r.err
}

func newTestServer(t *testing.T, runner TaskRunner, opts Options) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	persona := store.PersonaTemplate("US")
	require.NoError(t, st.SaveGuild(context.Background(), persona, state.ServerConfig{
		GuildID:         "g1",
		OwnerID:         "owner",
		PersonaID:       persona.ID,
		AllowedCommands: "send_message, add_reaction",
	}))

	if opts.Secret == "" {
		opts.Secret = testSecret
	}
	return NewServer(st, runner, opts).Router(), st
}

func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	router, _ := newTestServer(t, &recordingRunner{}, Options{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestExecute_MissingAuthorization(t *testing.T) {
	router, _ := newTestServer(t, &recordingRunner{}, Options{})

	w := doJSON(router, "POST", "/execute", "", state.ExecuteRequest{GuildID: "g1", Tasks: []state.Task{}})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header is missing")
}

func TestExecute_WrongToken(t *testing.T) {
	runner := &recordingRunner{}
	router, _ := newTestServer(t, runner, Options{})

	w := doJSON(router, "POST", "/execute", "nope", state.ExecuteRequest{
		GuildID: "g1",
		Tasks:   []state.Task{{Type: "send_message", Target: "c1", Params: map[string]interface{}{"text": "hi"}}},
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, runner.tasks)
}

func TestExecute_InvalidBody(t *testing.T) {
	router, _ := newTestServer(t, &recordingRunner{}, Options{})

	w := doJSON(router, "POST", "/execute", testSecret, map[string]interface{}{"tasks": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecute_UnconfiguredGuild(t *testing.T) {
	router, _ := newTestServer(t, &recordingRunner{}, Options{})

	w := doJSON(router, "POST", "/execute", testSecret, state.ExecuteRequest{GuildID: "unknown", Tasks: []state.Task{}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecute_AllowListAndResults(t *testing.T) {
	runner := &recordingRunner{}
	router, _ := newTestServer(t, runner, Options{})

	w := doJSON(router, "POST", "/execute", testSecret, state.ExecuteRequest{
		GuildID: "g1",
		Tasks: []state.Task{
			{Type: "ban", Target: "u2"},
			{Type: "send_message", Target: "c1", Params: map[string]interface{}{"text": "hi"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp state.ExecuteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)

	assert.False(t, resp.Results[0].Success)
	assert.Equal(t, ErrNotAllowed, resp.Results[0].Error)
	assert.Equal(t, "ban", resp.Results[0].Task.Type)

	assert.True(t, resp.Results[1].Success)
	assert.Empty(t, resp.Results[1].Error)

	require.Len(t, runner.tasks, 1, "disallowed tasks never reach the runner")
	assert.Equal(t, "send_message", runner.tasks[0].Type)
}

func TestExecute_RunnerFailureIsReported(t *testing.T) {
	runner := &recordingRunner{err: errors.New("Missing Access")}
	router, _ := newTestServer(t, runner, Options{})

	w := doJSON(router, "POST", "/execute", testSecret, state.ExecuteRequest{
		GuildID: "g1",
		Tasks:   []state.Task{{Type: "add_reaction", Target: "m1"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp state.ExecuteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.False(t, resp.Results[0].Success)
	assert.Equal(t, "Missing Access", resp.Results[0].Error)
}

func TestExecute_ChannelOfAnotherGuildIsRejected(t *testing.T) {
	session := newFakeSession()
	router, _ := newTestServer(t, NewRunner(session), Options{})

	w := doJSON(router, "POST", "/execute", testSecret, state.ExecuteRequest{
		GuildID: "g1",
		Tasks: []state.Task{
			{Type: "send_message", Target: "c2", Params: map[string]interface{}{"text": "hi"}},
			{Type: "add_reaction", Target: "m1", Params: map[string]interface{}{"channel_id": "c2", "emoji": "👍"}},
			{Type: "send_message", Target: "c1", Params: map[string]interface{}{"text": "hi"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp state.ExecuteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)

	for _, r := range resp.Results[:2] {
		assert.False(t, r.Success)
		assert.Equal(t, ErrForeignChannel.Error(), r.Error)
	}
	assert.True(t, resp.Results[2].Success)

	assert.Equal(t, []string{"c1:hi"}, session.sent)
	assert.Empty(t, session.reactions)
}

func TestAuditLog(t *testing.T) {
	router, st := newTestServer(t, &recordingRunner{}, Options{})

	w := doJSON(router, "POST", "/audit/log", testSecret, state.AuditEntry{GuildID: "g1", Action: "ban", ActorID: "bot"})
	require.Equal(t, http.StatusCreated, w.Code)

	entries, err := st.ListAudit(context.Background(), "g1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ban", entries[0].Action)

	w = doJSON(router, "POST", "/audit/log", testSecret, map[string]string{"guild_id": "g1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	router, _ := newTestServer(t, &recordingRunner{}, Options{RateLimitPerWindow: 2, RateLimitWindow: time.Hour})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/health", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
