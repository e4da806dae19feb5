package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/daemon"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/version"
)

// BuildCmd runs one pass, for CI and publishing.
type BuildCmd struct {
	Output string `short:"o" help:"Override output.directory" type:"path"`
}

func (b *BuildCmd) Run(g *Global, cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(g, cli)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Output.Directory = b.Output
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	d, err := daemon.New(daemon.Options{Config: cfg, Version: version.Version, Logger: g.Logger})
	if err != nil {
		return err
	}
	res, err := d.Build(ctx)
	if err != nil {
		return err
	}
	return passError(res)
}

// passError turns an incomplete pass into an error so the exit code reflects it.
func passError(res *build.PassResult) error {
	if res == nil || res.Status == build.StatusSuccess {
		return nil
	}
	e := ferrors.BuildError("generation pass did not succeed").
		WithContext("status", string(res.Status)).
		WithContext("failures", len(res.Failures))
	if len(res.Failures) > 0 {
		e = e.WithContext(logfields.KeyFile, res.Failures[0].File)
	}
	return e.Build()
}
