package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwrelay/internal/domain"
	"hwrelay/internal/hub"
	"hwrelay/internal/relay"
	"hwrelay/internal/repository/sqlite"
)

type staticStatus relay.Status

func (s staticStatus) Status() relay.Status { return relay.Status(s) }

func TestGetStatus(t *testing.T) {
	h := NewAPIHandler(staticStatus{
		Mode:          domain.TransportSerial,
		Target:        "/dev/ttyUSB0@115200",
		State:         domain.SessionConnected,
		HardwareReady: true,
		Clients:       2,
		Browsers: []hub.ClientInfo{
			{ID: "a1", Remote: "10.0.0.7:51000"},
			{ID: "b2", Remote: "10.0.0.8:51001"},
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "serial", got["mode"])
	assert.Equal(t, "/dev/ttyUSB0@115200", got["target"])
	assert.Equal(t, "connected", got["state"])
	assert.Equal(t, true, got["hardware_ready"])
	assert.Equal(t, 2.0, got["clients"])

	browsers, ok := got["browsers"].([]any)
	require.True(t, ok, "browsers should be a list")
	require.Len(t, browsers, 2)
	assert.Equal(t, "a1", browsers[0].(map[string]any)["id"])
}

func TestHealthz(t *testing.T) {
	h := NewAPIHandler(staticStatus{}, nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","hardware_ready":false}`, rec.Body.String())
}

func TestGetJournal(t *testing.T) {
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	for _, cmd := range []string{"LED:ON", "LED:OFF", "BEEP"} {
		require.NoError(t, repo.Append(ctx, domain.JournalEntry{Kind: domain.JournalRelayed, Detail: cmd}))
	}

	h := NewAPIHandler(staticStatus{}, repo)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantDetail []string
	}{
		{"default limit", "", http.StatusOK, []string{"BEEP", "LED:OFF", "LED:ON"}},
		{"explicit limit", "?limit=2", http.StatusOK, []string{"BEEP", "LED:OFF"}},
		{"zero limit", "?limit=0", http.StatusBadRequest, nil},
		{"not a number", "?limit=abc", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetJournal(rec, httptest.NewRequest(http.MethodGet, "/api/journal"+tt.query, nil))
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantDetail == nil {
				return
			}

			var entries []domain.JournalEntry
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
			details := make([]string, 0, len(entries))
			for _, e := range entries {
				details = append(details, e.Detail)
			}
			assert.Equal(t, tt.wantDetail, details)
		})
	}
}

func TestGetJournalDisabled(t *testing.T) {
	h := NewAPIHandler(staticStatus{}, nil)

	rec := httptest.NewRecorder()
	h.GetJournal(rec, httptest.NewRequest(http.MethodGet, "/api/journal", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Journal disabled", body.Error)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("first"), mw("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/status", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestLoggerRecordsStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestWebSocketUpgradeThroughMiddleware(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
	})

	srv := httptest.NewServer(Chain(ws, Recover, CORS, Logger))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
