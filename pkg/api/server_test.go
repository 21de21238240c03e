package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openig/igbot/pkg/client"
	"github.com/openig/igbot/pkg/config"
	"github.com/openig/igbot/pkg/igclient"
	"github.com/openig/igbot/pkg/infrastructure/eventbus"
	"github.com/openig/igbot/pkg/modules"
)

func newTestServer(t *testing.T) (*Server, *igclient.Fake) {
	t.Helper()
	cfg := config.Default()
	cfg.Gateway.APIKey = "test-key"

	fake := igclient.NewFake()
	fake.SeedThread(igclient.ThreadInfo{
		ThreadID: "t1",
		Title:    "crew",
		UserPKs:  []string{"7"},
		Users:    []igclient.UserInfo{{PK: "7", Username: "alice"}},
	})

	bus := eventbus.New()
	t.Cleanup(bus.Close)

	cl := client.New(fake, bus, nil, &cfg)
	require.NoError(t, cl.Login(context.Background(), "botacct", "hunter2"))
	require.NoError(t, cl.Connect(context.Background()))

	mgr := modules.NewManager(bus, cfg.Modules.Prefix)
	require.NoError(t, mgr.Register(modules.PingModule{}))

	return NewServer(&cfg, cl, mgr, nil, bus), fake
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	handler := authMiddleware("secret", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAcceptsEveryTokenCarrier(t *testing.T) {
	handler := authMiddleware("secret", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }},
		{"x-api-key header", func(r *http.Request) { r.Header.Set("X-API-Key", "secret") }},
		{"query param", func(r *http.Request) { r.URL.RawQuery = "token=secret" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/status", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	s, _ := newTestServer(t)
	handler := authMiddleware("secret", http.HandlerFunc(s.handleHealth))

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsClientAndModules(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "client")
	assert.Equal(t, "!", body["prefix"])
}

func TestChatsListing(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/chats", nil)
	rec := httptest.NewRecorder()
	s.handleChats(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "t1", body[0]["id"])
	assert.Equal(t, "crew", body[0]["title"])
}

func TestChatDetailNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/chats/missing", nil)
	rec := httptest.NewRecorder()
	s.handleChatDetail(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendEndpoint(t *testing.T) {
	s, fake := newTestServer(t)

	body := strings.NewReader(`{"chat_id":"t1","text":"from the dashboard"}`)
	req := httptest.NewRequest("POST", "/api/send", body)
	rec := httptest.NewRecorder()
	s.handleSend(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "from the dashboard", resp["text"])
	assert.Contains(t, fake.Calls, `send_text t1 "from the dashboard"`)
}

func TestSendEndpointValidation(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/send", nil)
	rec := httptest.NewRecorder()
	s.handleSend(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest("POST", "/api/send", strings.NewReader(`{"text":"no chat"}`))
	rec = httptest.NewRecorder()
	s.handleSend(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModulesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/modules", nil)
	rec := httptest.NewRecorder()
	s.handleModules(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "!", body["prefix"])
	cmds := body["commands"].([]interface{})
	require.Len(t, cmds, 1)
}
