package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/ingest/auth"
	"github.com/normanking/kaitd/internal/model"
	"github.com/normanking/kaitd/internal/queue"
)

func newTestServer(t *testing.T) (*Server, *queue.Queue) {
	t.Helper()
	q, err := queue.New(t.TempDir(), 0)
	require.NoError(t, err)
	authn, err := auth.New("secret-token")
	require.NoError(t, err)
	srv := New(Options{
		Config: config.ServerConfig{MaxBodyBytes: 1 << 20},
		Queue:  q,
		Auth:   authn,
		Log:    zerolog.Nop(),
	})
	return srv, q
}

func doRequest(srv *Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", srv.handleEvents)
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /status", srv.handleStatus)
	srv.withMiddleware(mux).ServeHTTP(rec, req)
	return rec
}

func TestHandleEventsAcceptsSingleEvent(t *testing.T) {
	srv, q := newTestServer(t)
	body, err := json.Marshal(model.Event{Kind: model.KindUserPrompt, SessionID: "s1", Text: "hello"})
	require.NoError(t, err)

	rec := doRequest(srv, "POST", "/events", "secret-token", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	entries, _, err := q.ReadFrom(0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "s1", entries[0].Event.SessionID)
}

func TestHandleEventsRejectsBadJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, "POST", "/events", "secret-token", []byte("not json"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEventsRejectsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(model.Event{Kind: model.KindUserPrompt})
	rec := doRequest(srv, "POST", "/events", "wrong-token", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleEventsAcceptsNDJSONBatch(t *testing.T) {
	srv, q := newTestServer(t)
	e1, _ := json.Marshal(model.Event{Kind: model.KindPreTool, SessionID: "s1"})
	e2, _ := json.Marshal(model.Event{Kind: model.KindPostTool, SessionID: "s1"})
	body := append(append(e1, '\n'), e2...)

	rec := doRequest(srv, "POST", "/events", "secret-token", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	entries, _, err := q.ReadFrom(0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestHandleHealthNeedsNoAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestHandleStatusReturnsJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, "GET", "/status", "secret-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
}
