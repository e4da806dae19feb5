package livereload

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"git.home.luguber.info/inful/sitegen/internal/build"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

const (
	transportWebSocket = "websocket"
	wsReadTimeout      = 60 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

// Command is the message pushed to WebSocket clients.
type Command struct {
	Cmd string `json:"cmd"`
}

// CmdReload asks the browser to reload the page.
const CmdReload = "reload"

// WebSocketServer pushes reload commands to WebSocket clients.
type WebSocketServer struct {
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	closed   bool
	upgrader websocket.Upgrader

	recorder metrics.Recorder
	logger   *slog.Logger
}

func NewWebSocketServer(recorder metrics.Recorder, logger *slog.Logger) *WebSocketServer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketServer{
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     localOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		recorder: recorder,
		logger:   logger,
	}
}

// localOrigin allows same-origin and loopback pages only.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	reqHost := r.Host
	if h, _, err := net.SplitHostPort(reqHost); err == nil {
		reqHost = h
	}
	return host != "" && strings.EqualFold(host, reqHost)
}

// ServeHTTP upgrades the connection and keeps it registered until the client
// goes away.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", logfields.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	n := len(s.conns)
	s.mu.Unlock()
	s.recorder.SetReloadClients(transportWebSocket, n)

	go s.readLoop(conn)
}

func (s *WebSocketServer) readLoop(conn *websocket.Conn) {
	defer s.remove(conn)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("WebSocket closed", logfields.Error(err))
			}
			return
		}
	}
}

func (s *WebSocketServer) remove(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.conns[conn]
	delete(s.conns, conn)
	n := len(s.conns)
	s.mu.Unlock()
	if ok {
		_ = conn.Close()
		s.recorder.SetReloadClients(transportWebSocket, n)
	}
}

// Broadcast writes cmd to every connection, dropping those that fail.
func (s *WebSocketServer) Broadcast(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode reload command").Build()
	}

	s.mu.Lock()
	var failed []*websocket.Conn
	for conn := range s.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			failed = append(failed, conn)
		}
	}
	sent := len(s.conns) - len(failed)
	s.mu.Unlock()

	for _, conn := range failed {
		s.remove(conn)
	}
	s.recorder.IncReloadBroadcast(transportWebSocket)
	s.logger.Debug("WebSocket reload sent", logfields.Count(sent), slog.Int("dropped", len(failed)))
	return nil
}

// Notify sends {"cmd":"reload"} for the completed pass.
func (s *WebSocketServer) Notify(_ context.Context, _ *build.PassResult) error {
	return s.Broadcast(Command{Cmd: CmdReload})
}

// ClientCount returns the number of open connections.
func (s *WebSocketServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close closes every connection and rejects new ones.
func (s *WebSocketServer) Close() {
	s.mu.Lock()
	s.closed = true
	conns := s.conns
	s.conns = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	for conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.recorder.SetReloadClients(transportWebSocket, 0)
}
