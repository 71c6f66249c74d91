package webui

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentrunner/pkg/agent"
)

type fakeChatter struct {
	mu    sync.Mutex
	calls [][2]string
	reply string
}

func (f *fakeChatter) ProcessMessage(_ context.Context, sessionID, text string) agent.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{sessionID, text})
	return agent.Reply{Reply: f.reply}
}

func postChat(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, ChatResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp ChatResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHandleChat(t *testing.T) {
	chat := &fakeChatter{reply: "Sunny."}
	h := NewServer(chat, nil, "").Handler()

	w, resp := postChat(t, h, "/api/chat", `{"sessionId":"abc","message":"Weather in Paris?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "Sunny.", resp.Reply)
	assert.Equal(t, "abc", resp.SessionID)
	assert.Equal(t, [][2]string{{"abc", "Weather in Paris?"}}, chat.calls)
}

func TestHandleChat_AssignsSessionID(t *testing.T) {
	chat := &fakeChatter{reply: "ok"}
	h := NewServer(chat, nil, "").Handler()

	w, resp := postChat(t, h, "/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.SessionID, 36)
	require.Len(t, chat.calls, 1)
	assert.Equal(t, resp.SessionID, chat.calls[0][0])
}

func TestHandleChat_BadRequests(t *testing.T) {
	chat := &fakeChatter{}
	h := NewServer(chat, nil, "").Handler()

	w, _ := postChat(t, h, "/api/chat", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Empty(t, chat.calls)
}

func TestHandleHealth(t *testing.T) {
	h := NewServer(&fakeChatter{}, nil, "").Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"dev"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("agent_turns_total 1\n"))
	})
	h := NewServer(&fakeChatter{}, metrics, "/metrics").Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agent_turns_total")

	h = NewServer(&fakeChatter{}, nil, "/metrics").Handler()
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartServer_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(&fakeChatter{}, nil, "").StartServer(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
