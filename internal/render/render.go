// Package render turns one content page into an HTML output file.
package render

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/natefinch/atomic"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/frontmatter"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/templates"
)

const (
	// PageExt is the only source extension that is rendered.
	PageExt = ".md"
	// OutputExt replaces PageExt on written files.
	OutputExt = ".html"
	// DefaultTemplate is used when a page declares no template.
	DefaultTemplate = "default"
)

// Converter turns a page body into HTML.
type Converter interface {
	Convert(body []byte) (string, error)
}

// Site carries pass-wide values exposed to templates under "site".
type Site struct {
	PassID   string
	Revision string
}

// Renderer renders pages from a source filesystem into PublicDir.
type Renderer struct {
	Source    billy.Filesystem
	PublicDir string
	Converter Converter
	Site      Site
	Logger    *slog.Logger
}

// Page is the rendered form of one source file.
type Page struct {
	Name     string
	Dir      string
	Template string
	// Templated is false when the selected template was not registered.
	Templated bool
	HTML      string
	// Output is the written file; empty when nothing was written.
	Output string
}

// IsPage reports whether a file name qualifies for rendering.
func IsPage(name string) bool {
	return path.Ext(name) == PageExt
}

// OutputPath returns where the page named name in dir is written.
func (r *Renderer) OutputPath(name, dir string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	return filepath.Join(r.PublicDir, filepath.FromSlash(dir), base+OutputExt)
}

// Build renders a page without writing it.
func (r *Renderer) Build(reg *templates.Registry, name, dir, file string) (Page, error) {
	data, err := util.ReadFile(r.Source, file)
	if err != nil {
		return Page{}, errors.WrapError(err, errors.CategoryFileSystem, "read page").
			WithContext("file", file).
			Build()
	}

	meta, err := frontmatter.Parse(data)
	if err != nil {
		return Page{}, err
	}

	html, err := r.Converter.Convert([]byte(meta.Body))
	if err != nil {
		return Page{}, errors.WrapError(err, errors.CategoryRender, "convert page body").
			WithContext("file", file).
			Build()
	}

	base := strings.TrimSuffix(name, path.Ext(name))
	page := Page{Name: base, Dir: dir, Template: meta.Template, HTML: html}
	if page.Template == "" {
		page.Template = DefaultTemplate
	}

	tmpl, ok := reg.Lookup(page.Template)
	if !ok {
		return page, nil
	}

	out, err := tmpl.Render(r.context(meta, tmpl, base, dir, html))
	if err != nil {
		return Page{}, err
	}
	page.HTML = out
	page.Templated = true
	return page, nil
}

// Render renders one page and writes it under PublicDir.
//
// Files that are not Markdown pages are ignored and the returned Page has no
// Output. A failure affects only this file.
func (r *Renderer) Render(ctx context.Context, reg *templates.Registry, name, dir, file string) (Page, error) {
	if !IsPage(name) {
		return Page{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	start := time.Now()
	page, err := r.Build(reg, name, dir, file)
	if err != nil {
		return Page{}, err
	}

	out := r.OutputPath(name, dir)
	if err := writeFile(out, page.HTML); err != nil {
		return Page{}, err
	}
	page.Output = out

	r.logger().Debug("Rendered page",
		logfields.Page(dir+page.Name),
		logfields.Template(page.Template),
		slog.Bool("templated", page.Templated),
		logfields.Path(out),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	return page, nil
}

// context builds the template context. Precedence, lowest first: derived
// defaults, template defaults, page metadata, converted body.
func (r *Renderer) context(meta frontmatter.Metadata, tmpl *templates.Compiled, base, dir, html string) map[string]any {
	derived := map[string]any{
		"page": base,
		"path": dir,
		"site": map[string]any{
			"pass":     r.Site.PassID,
			"revision": r.Site.Revision,
		},
		frontmatter.KeyTitle: TitleFromName(base),
	}
	defaults := tmpl.Defaults()

	data := make(map[string]any, len(derived)+len(meta.Declared())+1)
	for key, value := range derived {
		if _, ok := defaults[key]; !ok {
			data[key] = value
		}
	}
	maps.Copy(data, meta.Fields())
	data[frontmatter.KeyBody] = html
	return data
}

// TitleFromName derives a display title from a page base name.
func TitleFromName(base string) string {
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func writeFile(out, content string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create output directory").
			WithContext("path", out).
			Build()
	}
	_, statErr := os.Stat(out)
	if err := atomic.WriteFile(out, strings.NewReader(content)); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write output").
			WithContext("path", out).
			Build()
	}
	if os.IsNotExist(statErr) {
		// New files inherit the temp file's 0600 mode.
		if err := os.Chmod(out, 0o644); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "chmod output").
				WithContext("path", out).
				Build()
		}
	}
	return nil
}

func (r *Renderer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
