package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitegen/internal/daemon"
	"git.home.luguber.info/inful/sitegen/internal/version"
)

// ServeCmd runs the watch, rebuild and preview loop.
type ServeCmd struct {
	Host         string `help:"Override server.host"`
	Port         int    `short:"p" help:"Override server.port"`
	NoLiveReload bool   `name:"no-live-reload" help:"Disable reload notifications and script injection"`
}

func (s *ServeCmd) Run(g *Global, cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(g, cli)
	if err != nil {
		return err
	}
	if s.Host != "" {
		cfg.Server.Host = s.Host
	}
	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}
	if s.NoLiveReload {
		off := false
		cfg.LiveReload.Enabled = &off
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	d, err := daemon.New(daemon.Options{Config: cfg, Version: version.Version, Logger: g.Logger})
	if err != nil {
		return err
	}
	g.Logger.Info("Starting sitegen", "version", version.Version, "source", cfg.Source.Dir, "output", cfg.Output.Directory)
	return d.Serve(ctx)
}
