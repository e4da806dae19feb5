package templates

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/cbroglie/mustache"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"git.home.luguber.info/inful/sitegen/internal/filetree"
	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/frontmatter"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Name derives a registry key from a template file name by stripping its extension.
func Name(file string) string {
	if base := strings.TrimSuffix(file, path.Ext(file)); base != "" {
		return base
	}
	return file
}

type source struct {
	file     string
	text     string
	defaults map[string]any
}

// Loader populates registries from a walked templates tree.
type Loader struct {
	FS     billy.Filesystem
	Logger *slog.Logger
	// OnError receives per-file failures. Failed files are not registered.
	OnError func(file string, err error)
}

// Load reads every leaf of tree, then compiles each under its base name.
//
// Leaves are visited in sorted order, so when two files share a base name the
// lexicographically last path wins. All sources are read before compiling so
// partials may reference any template regardless of order.
func (l *Loader) Load(ctx context.Context, tree *filetree.Node) (*Registry, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sources := make(map[string]source)
	var order []string
	err := filetree.Visit(tree, func(name, _, file string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := util.ReadFile(l.FS, file)
		if err != nil {
			l.fail(file, errors.WrapError(err, errors.CategoryFileSystem, "read template").
				WithContext("file", file).
				Build())
			return nil
		}
		meta, err := frontmatter.Parse(data)
		if err != nil {
			l.fail(file, err)
			return nil
		}

		key := Name(name)
		if prev, ok := sources[key]; ok {
			logger.Warn("Template name collision, later file wins",
				logfields.Template(key),
				slog.String("replaced", prev.file),
				logfields.File(file))
		} else {
			order = append(order, key)
		}
		src := source{file: file, text: meta.Body, defaults: meta.Fields()}
		if meta.Body == "" {
			// Declaration-only text is the template itself.
			src = source{file: file, text: string(data)}
		}
		sources[key] = src
		return nil
	})
	if err != nil {
		return nil, err
	}

	partials := &mustache.StaticProvider{Partials: make(map[string]string, len(sources))}
	for key, src := range sources {
		partials.Partials[key] = src.text
	}

	reg := NewRegistry()
	for _, key := range order {
		src := sources[key]
		compiled, err := Compile(key, src.file, src.text, src.defaults, partials)
		if err != nil {
			l.fail(src.file, err)
			continue
		}
		reg.Register(compiled)
		logger.Debug("Compiled template", logfields.Template(key), logfields.File(src.file))
	}
	return reg, nil
}

func (l *Loader) fail(file string, err error) {
	if l.OnError != nil {
		l.OnError(file, err)
	}
}
