// Package daemon wires watching, rebuild coordination, generation passes and
// the preview server into a long-running process.
package daemon

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/git"
	"git.home.luguber.info/inful/sitegen/internal/history"
	"git.home.luguber.info/inful/sitegen/internal/livereload"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/markdown"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/server"
	"git.home.luguber.info/inful/sitegen/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Daemon.
type Options struct {
	Config  *config.Config
	Version string
	Logger  *slog.Logger
	// Addr overrides the listen address derived from the server config.
	Addr string
}

// Daemon owns every long-lived component of sitegen serve.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	bus          *events.Bus
	promRegistry *prometheus.Registry
	recorder     metrics.Recorder
	orchestrator *build.Orchestrator

	lastPass atomic.Pointer[build.PassResult]
	ready    chan struct{}
	addrMu   sync.RWMutex
	addr     net.Addr
}

// New builds the generation pipeline from opts.Config. Servers, watchers and
// stores are created by Serve.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, ferrors.ValidationError("config is required").Build()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := opts.Config

	reg := metrics.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)

	srcDir := cfg.Source.Dir
	converter := markdown.NewConverter(markdown.Options{
		RewriteLinks:   cfg.RewriteLinks(),
		Highlight:      cfg.Highlight(),
		HighlightStyle: cfg.Markdown.HighlightStyle,
	})
	orch := build.NewOrchestrator(build.Options{
		Source:       osfs.New(srcDir),
		TemplatesDir: cfg.Source.Templates,
		PagesDir:     cfg.Source.Pages,
		PublicDir:    cfg.Output.Directory,
		Converter:    converter,
		Recorder:     recorder,
		Revision:     func() (string, error) { return git.HeadRevision(srcDir) },
		Logger:       opts.Logger,
	})

	return &Daemon{
		cfg:          cfg,
		opts:         opts,
		logger:       opts.Logger,
		bus:          events.NewBus(),
		promRegistry: reg,
		recorder:     recorder,
		orchestrator: orch,
		ready:        make(chan struct{}),
	}, nil
}

// Bus exposes the event bus connecting the daemon components.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// AddNotifier registers an extra reload notifier.
func (d *Daemon) AddNotifier(n build.Notifier) { d.orchestrator.AddNotifier(n) }

// Ready is closed once the initial pass ran and the server is listening.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Addr returns the bound server address after Ready.
func (d *Daemon) Addr() net.Addr {
	d.addrMu.RLock()
	defer d.addrMu.RUnlock()
	return d.addr
}

// LastPass returns the most recent pass result, if any.
func (d *Daemon) LastPass() *build.PassResult { return d.lastPass.Load() }

// Build runs a single pass without serving or watching.
func (d *Daemon) Build(ctx context.Context) (*build.PassResult, error) {
	defer d.bus.Close()
	res, err := d.orchestrator.Run(ctx, events.ReasonManual)
	if res != nil {
		d.lastPass.Store(res)
	}
	return res, err
}

func (d *Daemon) listenAddr() string {
	if d.opts.Addr != "" {
		return d.opts.Addr
	}
	return net.JoinHostPort(d.cfg.Server.Host, strconv.Itoa(d.cfg.Server.Port))
}

// Serve runs the initial pass, starts the preview server and rebuilds on
// every source change until ctx is done.
func (d *Daemon) Serve(ctx context.Context) error {
	defer d.bus.Close()

	if err := os.MkdirAll(d.cfg.Output.Directory, 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create output directory").
			WithContext("path", d.cfg.Output.Directory).
			Build()
	}

	store, err := d.openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var hub *livereload.Hub
	var ws *livereload.WebSocketServer
	if d.cfg.LiveReloadEnabled() {
		hub = livereload.NewHub(d.recorder, d.logger)
		ws = livereload.NewWebSocketServer(d.recorder, d.logger)
		d.orchestrator.AddNotifier(hub)
		d.orchestrator.AddNotifier(ws)
	}
	if d.cfg.LiveReload.NATSURL != "" {
		nn, natsErr := livereload.NewNATSNotifier(d.cfg.LiveReload.NATSURL, d.cfg.LiveReload.NATSSubject, d.recorder, d.logger)
		if natsErr != nil {
			return natsErr
		}
		defer nn.Close()
		d.orchestrator.AddNotifier(nn)
	}

	srvOpts := server.Options{
		Addr:         d.listenAddr(),
		PublicDir:    d.cfg.Output.Directory,
		Hub:          hub,
		WebSocket:    ws,
		History:      store,
		HistoryLimit: d.cfg.History.Limit,
		LastPass:     d.LastPass,
		Version:      d.opts.Version,
		Logger:       d.logger,
	}
	if d.cfg.MetricsEnabled() {
		srvOpts.Metrics = metrics.HTTPHandler(d.promRegistry)
	}
	srv := server.New(srvOpts)

	worker, err := NewWorker(d.bus, d.orchestrator, d.logger)
	if err != nil {
		return err
	}
	debouncer, err := NewDebouncer(d.bus, DebouncerConfig{
		QuietWindow:      d.cfg.DebounceWindow(),
		MaxDelay:         d.cfg.Watch.MaxDelay,
		CheckPassRunning: worker.Running,
		Recorder:         d.recorder,
		Logger:           d.logger,
	})
	if err != nil {
		return err
	}
	watcher, err := watch.New(d.cfg.Source.Dir, d.bus, d.logger)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	passCh, unsubscribe := events.Subscribe[events.PassCompleted](d.bus, 16)
	defer unsubscribe()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return debouncer.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return d.recordPasses(gctx, passCh, store) })
	<-debouncer.Ready()
	<-worker.Ready()

	stop := func(srv *server.Server) error {
		if srv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				d.logger.Warn("HTTP server shutdown error", logfields.Error(err))
			}
		}
		cancel()
		return g.Wait()
	}

	worker.RunPass(runCtx, events.ReasonStartup)
	if runCtx.Err() != nil {
		return stop(nil)
	}

	if err := srv.Start(runCtx); err != nil {
		_ = stop(nil)
		return err
	}
	d.addrMu.Lock()
	d.addr = srv.Addr()
	d.addrMu.Unlock()

	if every := d.cfg.Watch.RebuildEvery; every > 0 {
		sched, err := d.startScheduler(gctx, every)
		if err != nil {
			_ = stop(srv)
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	d.logger.Info("Watching for changes", logfields.Path(watcher.Root()))
	close(d.ready)

	<-gctx.Done()
	d.logger.Info("Shutting down preview server")
	return stop(srv)
}

func (d *Daemon) startScheduler(ctx context.Context, every time.Duration) (*Scheduler, error) {
	sched, err := NewScheduler(d.bus, d.logger)
	if err != nil {
		return nil, err
	}
	if _, err := sched.ScheduleRebuild(ctx, every); err != nil {
		_ = sched.Stop()
		return nil, err
	}
	sched.Start()
	return sched, nil
}

func (d *Daemon) openHistory() (*history.SQLiteStore, error) {
	path := d.cfg.History.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "failed to create history directory").
				WithContext("path", path).
				Build()
		}
	}
	return history.NewSQLiteStore(path)
}

// recordPasses stores every pass result and remembers the latest.
func (d *Daemon) recordPasses(ctx context.Context, passCh <-chan events.PassCompleted, store history.Store) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-passCh:
			if !ok {
				return nil
			}
			d.lastPass.Store(evt.Result)
			if err := store.Record(ctx, evt.Result); err != nil && ctx.Err() == nil {
				d.logger.Warn("Failed to record pass", logfields.PassID(evt.Result.ID), logfields.Error(err))
			}
		}
	}
}
