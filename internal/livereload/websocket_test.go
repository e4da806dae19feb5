package livereload

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/build"
)

func dialWS(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func TestWebSocketServer_NotifySendsReloadCommand(t *testing.T) {
	ws := NewWebSocketServer(nil, nil)
	defer ws.Close()

	srv := httptest.NewServer(ws)
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "http://localhost:3000")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	waitForClients(t, ws.ClientCount, 1)
	require.NoError(t, ws.Notify(t.Context(), &build.PassResult{ID: "p"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"cmd":"reload"}`, string(msg))
}

func TestWebSocketServer_RejectsForeignOrigin(t *testing.T) {
	ws := NewWebSocketServer(nil, nil)
	defer ws.Close()

	srv := httptest.NewServer(ws)
	defer srv.Close()

	_, resp, err := dialWS(t, srv, "http://evil.example.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Zero(t, ws.ClientCount())
}

func TestLocalOrigin(t *testing.T) {
	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "localhost:3000", true},
		{"http://localhost:3000", "localhost:3000", true},
		{"https://127.0.0.1", "127.0.0.1:3000", true},
		{"http://[::1]:3000", "[::1]:3000", true},
		{"http://192.168.1.20:3000", "192.168.1.20:3000", true},
		{"http://localhost.evil.com", "localhost:3000", false},
		{"http://127.0.0.1.evil.com", "localhost:3000", false},
		{"http://evil.example.com", "localhost:3000", false},
		{"file://localhost", "localhost:3000", false},
		{"://bad", "localhost:3000", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/livereload/ws", nil)
		r.Host = tc.host
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		require.Equal(t, tc.want, localOrigin(r), tc.origin)
	}
}

func TestWebSocketServer_ClientDisconnectUnregisters(t *testing.T) {
	ws := NewWebSocketServer(nil, nil)
	defer ws.Close()

	srv := httptest.NewServer(ws)
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "")
	require.NoError(t, err)
	waitForClients(t, ws.ClientCount, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, ws.ClientCount, 0)
}
