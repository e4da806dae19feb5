package build

import (
	"context"
	stderrors "errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitegen/internal/filetree"
	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/observability"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/templates"
)

// Default source subdirectories.
const (
	DefaultTemplatesDir = "templates"
	DefaultPagesDir     = "pages"
)

// Notifier is told when a pass completed so clients can reload.
type Notifier interface {
	Notify(ctx context.Context, result *PassResult) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, result *PassResult) error

func (f NotifierFunc) Notify(ctx context.Context, result *PassResult) error { return f(ctx, result) }

// RevisionFunc reports the source revision stamped onto a pass.
type RevisionFunc func() (string, error)

// Options configures an Orchestrator.
type Options struct {
	// Source holds the templates and pages trees.
	Source       billy.Filesystem
	TemplatesDir string
	PagesDir     string
	PublicDir    string
	Converter    render.Converter
	Recorder     metrics.Recorder
	Revision     RevisionFunc
	Logger       *slog.Logger
}

// Orchestrator runs generation passes.
type Orchestrator struct {
	opts Options

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewOrchestrator creates an orchestrator with defaults applied.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.TemplatesDir == "" {
		opts.TemplatesDir = DefaultTemplatesDir
	}
	if opts.PagesDir == "" {
		opts.PagesDir = DefaultPagesDir
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{opts: opts}
}

// AddNotifier registers n to be told about completed passes.
func (o *Orchestrator) AddNotifier(n Notifier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifiers = append(o.notifiers, n)
}

type pass struct {
	*Orchestrator
	result   *PassResult
	failMu   sync.Mutex
	fp       siteFingerprint
	renderer *render.Renderer
}

// Run executes one full pass: templates, pages, then reload notification.
//
// The returned error is non-nil only when the pass failed as a whole or was
// cancelled. Per-file failures are recorded on the result and produce
// StatusPartial.
func (o *Orchestrator) Run(ctx context.Context, reason string) (*PassResult, error) {
	result := &PassResult{
		ID:        uuid.NewString(),
		Reason:    reason,
		StartTime: time.Now(),
	}
	ctx = observability.WithReason(observability.WithPassID(ctx, result.ID), reason)
	logger := o.opts.Logger

	if o.opts.Revision != nil {
		rev, err := o.opts.Revision()
		if err != nil {
			observability.WarnContext(ctx, logger, "Source revision unavailable", logfields.Error(err))
		}
		result.Revision = rev
	}

	p := &pass{Orchestrator: o, result: result}
	p.renderer = &render.Renderer{
		Source:    o.opts.Source,
		PublicDir: o.opts.PublicDir,
		Converter: o.opts.Converter,
		Site:      render.Site{PassID: result.ID, Revision: result.Revision},
		Logger:    logger,
	}

	observability.InfoContext(ctx, logger, "Generation pass started")

	reg, err := p.templatesPhase(observability.WithPhase(ctx, string(PhaseTemplates)))
	if err == nil {
		err = p.pagesPhase(observability.WithPhase(ctx, string(PhasePages)), reg)
	}
	if err != nil {
		return p.finish(ctx, err)
	}

	result.Fingerprint = p.fp.sum()
	result.Status = StatusSuccess
	if len(result.Failures) > 0 {
		result.Status = StatusPartial
	}
	o.notify(observability.WithPhase(ctx, string(PhaseComplete)), result)
	return p.finish(ctx, nil)
}

func (p *pass) templatesPhase(ctx context.Context) (*templates.Registry, error) {
	start := time.Now()
	defer func() { p.opts.Recorder.ObservePhaseDuration(string(PhaseTemplates), time.Since(start)) }()

	tree, err := filetree.Walk(ctx, p.opts.Source, p.opts.TemplatesDir)
	if err != nil {
		return nil, err
	}

	loader := &templates.Loader{
		FS:      p.opts.Source,
		Logger:  p.opts.Logger,
		OnError: func(file string, err error) { p.fail(ctx, PhaseTemplates, file, err) },
	}
	reg, err := loader.Load(ctx, tree)
	if err != nil {
		return nil, err
	}
	p.result.Templates = reg.Len()
	p.opts.Recorder.SetTemplates(reg.Len())
	observability.DebugContext(ctx, p.opts.Logger, "Templates compiled", logfields.Count(reg.Len()))
	return reg, nil
}

func (p *pass) pagesPhase(ctx context.Context, reg *templates.Registry) error {
	start := time.Now()
	defer func() { p.opts.Recorder.ObservePhaseDuration(string(PhasePages), time.Since(start)) }()

	tree, err := filetree.Walk(ctx, p.opts.Source, p.opts.PagesDir)
	if err != nil {
		return err
	}

	err = filetree.Visit(tree, func(name, dir, file string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !render.IsPage(name) {
			p.result.PagesSkipped++
			return nil
		}
		page, err := p.renderer.Render(ctx, reg, name, dir, file)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.fail(ctx, PhasePages, file, err)
			return nil
		}
		p.result.PagesRendered++
		rel, relErr := filepath.Rel(p.opts.PublicDir, page.Output)
		if relErr != nil {
			rel = page.Output
		}
		p.fp.add(filepath.ToSlash(rel), page.HTML)
		return nil
	})
	p.opts.Recorder.AddPages("rendered", p.result.PagesRendered)
	p.opts.Recorder.AddPages("skipped", p.result.PagesSkipped)
	return err
}

func (p *pass) fail(ctx context.Context, phase Phase, file string, err error) {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	p.result.Failures = append(p.result.Failures, FileFailure{Phase: phase, File: file, Error: err.Error()})
	if phase == PhasePages {
		p.opts.Recorder.AddPages("failed", 1)
	}
	observability.ErrorContext(ctx, p.opts.Logger, "File failed", logfields.File(file), logfields.Error(err))
}

func (o *Orchestrator) notify(ctx context.Context, result *PassResult) {
	o.mu.RLock()
	notifiers := append([]Notifier(nil), o.notifiers...)
	o.mu.RUnlock()

	for _, n := range notifiers {
		if err := n.Notify(ctx, result); err != nil {
			observability.WarnContext(ctx, o.opts.Logger, "Reload notification failed", logfields.Error(err))
		}
	}
}

func (p *pass) finish(ctx context.Context, err error) (*PassResult, error) {
	res := p.result
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)

	if err != nil {
		res.Status = StatusFailed
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			res.Status = StatusCancelled
		}
		res.Error = err.Error()
		if res.Status == StatusFailed {
			if _, ok := errors.AsClassified(err); !ok {
				err = errors.WrapError(err, errors.CategoryBuild, "generation pass failed").Build()
			}
		}
	}

	p.opts.Recorder.ObservePassDuration(res.Duration)
	p.opts.Recorder.IncPassOutcome(outcomeLabel(res.Status))

	attrs := []slog.Attr{
		logfields.Outcome(string(res.Status)),
		logfields.DurationMS(float64(res.Duration.Microseconds()) / 1000),
		slog.Int("templates", res.Templates),
		slog.Int("pages_rendered", res.PagesRendered),
		slog.Int("pages_skipped", res.PagesSkipped),
		slog.Int("failures", len(res.Failures)),
	}
	switch res.Status {
	case StatusFailed:
		observability.ErrorContext(ctx, p.opts.Logger, "Generation pass failed", append(attrs, logfields.Error(err))...)
	case StatusCancelled:
		observability.WarnContext(ctx, p.opts.Logger, "Generation pass cancelled", attrs...)
	default:
		observability.InfoContext(ctx, p.opts.Logger, "Site updated", attrs...)
	}
	return res, err
}

func outcomeLabel(s Status) metrics.PassOutcome {
	switch s {
	case StatusSuccess:
		return metrics.PassSuccess
	case StatusPartial:
		return metrics.PassPartial
	case StatusCancelled:
		return metrics.PassCancelled
	default:
		return metrics.PassFailed
	}
}
