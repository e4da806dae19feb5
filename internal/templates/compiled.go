package templates

import (
	"maps"

	"github.com/cbroglie/mustache"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Compiled is a template ready to render.
type Compiled struct {
	Name     string
	File     string
	defaults map[string]any
	tmpl     *mustache.Template
}

// Compile parses source as a mustache template. Variables are substituted
// without HTML escaping so converted page bodies render as markup.
func Compile(name, file, source string, defaults map[string]any, partials mustache.PartialProvider) (*Compiled, error) {
	tmpl, err := mustache.ParseStringPartialsRaw(source, partials, true)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryTemplate, "compile template").
			WithContext("template", name).
			WithContext("file", file).
			Build()
	}
	return &Compiled{Name: name, File: file, defaults: maps.Clone(defaults), tmpl: tmpl}, nil
}

// Render expands the template. Keys in data override the template defaults.
func (c *Compiled) Render(data map[string]any) (string, error) {
	ctx := make(map[string]any, len(c.defaults)+len(data))
	maps.Copy(ctx, c.defaults)
	maps.Copy(ctx, data)

	out, err := c.tmpl.Render(ctx)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryTemplate, "render template").
			WithContext("template", c.Name).
			Build()
	}
	return out, nil
}

// Defaults returns a copy of the template's declared defaults.
func (c *Compiled) Defaults() map[string]any {
	return maps.Clone(c.defaults)
}
