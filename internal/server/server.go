package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/history"
	"git.home.luguber.info/inful/sitegen/internal/livereload"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Endpoint paths besides the static site and the live reload endpoints.
const (
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"
	PassesPath  = "/_sitegen/passes"
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":3000".
	Addr      string
	PublicDir string

	// Hub and WebSocket enable live reload when non-nil. The client script is
	// injected into HTML only when at least one of them is set.
	Hub       *livereload.Hub
	WebSocket *livereload.WebSocketServer

	Metrics http.Handler
	History history.Store
	// HistoryLimit is the default page size of the passes endpoint.
	HistoryLimit int
	// LastPass reports the most recent pass for the health endpoint.
	LastPass func() *build.PassResult

	Version string
	Logger  *slog.Logger
}

// Server is the preview HTTP server.
type Server struct {
	opts      Options
	adapter   *errors.HTTPErrorAdapter
	startTime time.Time
	srv       *http.Server
	ln        net.Listener
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = history.DefaultListLimit
	}
	return &Server{
		opts:      opts,
		adapter:   errors.NewHTTPErrorAdapter(opts.Logger),
		startTime: time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var site http.Handler = http.FileServer(http.Dir(s.opts.PublicDir))
	if s.opts.Hub != nil || s.opts.WebSocket != nil {
		site = livereload.Injector(site, livereload.ScriptTag)
		mux.Handle(livereload.ScriptPath, corsMiddleware(livereload.ScriptHandler(s.opts.Logger)))
	}
	if s.opts.Hub != nil {
		mux.Handle(livereload.SSEPath, corsMiddleware(s.opts.Hub))
	}
	if s.opts.WebSocket != nil {
		mux.Handle(livereload.WebSocketPath, s.opts.WebSocket)
	}
	if s.opts.Metrics != nil {
		mux.Handle(MetricsPath, s.opts.Metrics)
	}
	if s.opts.History != nil {
		mux.HandleFunc("GET "+PassesPath, s.handlePasses)
		mux.HandleFunc("GET "+PassesPath+"/{id}", s.handlePass)
	}
	mux.HandleFunc("GET "+HealthPath, s.handleHealth)
	mux.Handle("/", site)

	return chain(s.opts.Logger, s.adapter)(mux)
}

// Start binds the listen address and serves in the background. Bind errors
// are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to bind preview server").
			WithContext("addr", s.opts.Addr).
			Build()
	}
	s.ln = ln
	// No write timeout: SSE connections are long-lived.
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Error("Preview server stopped", logfields.Error(err))
		}
	}()
	s.opts.Logger.Info("Preview server listening", logfields.URL("http://"+displayAddr(ln.Addr())))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting connections and waits for handlers until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if s.opts.Hub != nil {
		s.opts.Hub.Shutdown()
	}
	if s.opts.WebSocket != nil {
		s.opts.WebSocket.Close()
	}
	return s.srv.Shutdown(ctx)
}

func displayAddr(a net.Addr) string {
	if tcp, ok := a.(*net.TCPAddr); ok && tcp.IP.IsUnspecified() {
		return net.JoinHostPort("localhost", strconv.Itoa(tcp.Port))
	}
	return a.String()
}
