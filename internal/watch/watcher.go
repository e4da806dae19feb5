// Package watch turns filesystem changes under the source root into rebuild
// requests.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitegen/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Watcher watches a directory tree recursively. Directories created while
// watching are added as they appear.
type Watcher struct {
	root   string
	bus    *events.Bus
	logger *slog.Logger
	fsw    *fsnotify.Watcher
}

// New starts watching root. Close must be called to release the watcher.
func New(root string, bus *events.Bus, logger *slog.Logger) (*Watcher, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve watch root").
			WithContext("path", root).
			Build()
	}
	if st, statErr := os.Stat(abs); statErr != nil || !st.IsDir() {
		return nil, ferrors.FileSystemError("watch root not found or not a directory").
			WithCause(statErr).
			WithContext("path", abs).
			Build()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "create filesystem watcher").Build()
	}
	w := &Watcher{root: abs, bus: bus, logger: logger, fsw: fsw}
	w.addDirsRecursive(abs)
	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Run publishes a RebuildRequested for every relevant change until ctx is
// done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	if ShouldIgnore(rel) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, statErr := os.Stat(ev.Name); statErr == nil && fi.IsDir() {
			w.addDirsRecursive(ev.Name)
		}
	}

	w.logger.Debug("File change detected", logfields.Path(rel), slog.String("op", ev.Op.String()))
	evt := events.RebuildRequested{
		Reason:      events.ReasonFSChange,
		Path:        filepath.ToSlash(rel),
		Op:          ev.Op.String(),
		RequestedAt: time.Now(),
	}
	if err := w.bus.Publish(ctx, evt); err != nil && ctx.Err() == nil {
		w.logger.Warn("Failed to request rebuild", logfields.Path(rel), logfields.Error(err))
	}
}

func (w *Watcher) addDirsRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// ShouldIgnore reports whether a change at rel (relative to the watch root)
// must not trigger a rebuild: hidden entries at any depth and editor
// temp/swap files.
func ShouldIgnore(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return false
	}
	for seg := range strings.SplitSeq(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}

	base := filepath.Base(rel)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case base == "Thumbs.db" || base == "4913":
		return true
	}
	return false
}
