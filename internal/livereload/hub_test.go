package livereload

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/build"
)

func connectSSE(t *testing.T, url string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func readUntil(t *testing.T, r *bufio.Reader, needle string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err, "stream ended before %q", needle)
		if strings.Contains(line, needle) {
			return
		}
	}
}

func waitForClients(t *testing.T, count func() int, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return count() == n }, time.Second, 5*time.Millisecond)
}

func TestHub_InitialConnectReceivesBaseline(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Shutdown()
	hub.Broadcast("abc123")

	srv := httptest.NewServer(hub)
	defer srv.Close()

	r := connectSSE(t, srv.URL)
	readUntil(t, r, `data: {"hash":"abc123"}`)
}

func TestHub_NotifyBroadcastsPassID(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Shutdown()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	r := connectSSE(t, srv.URL)
	readUntil(t, r, ": connected")
	waitForClients(t, hub.ClientCount, 1)

	require.NoError(t, hub.Notify(t.Context(), &build.PassResult{ID: "pass-1"}))
	readUntil(t, r, `"hash":"pass-1"`)
}

func TestHub_DuplicateHashIgnored(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Shutdown()

	c := &client{id: 99, ch: make(chan string, 8), done: make(chan struct{})}
	hub.mu.Lock()
	hub.clients[c.id] = c
	hub.mu.Unlock()

	hub.Broadcast("h1")
	hub.Broadcast("h1")
	hub.Broadcast("")
	require.Len(t, c.ch, 1)
}

func TestHub_ShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub(nil, nil)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	r := connectSSE(t, srv.URL)
	readUntil(t, r, ": connected")
	waitForClients(t, hub.ClientCount, 1)

	hub.Shutdown()
	require.Zero(t, hub.ClientCount())

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
