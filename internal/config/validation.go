package config

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// normalize canonicalizes enum and path fields after defaults.
func normalize(c *Config) {
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
	c.Source.Dir = filepath.Clean(c.Source.Dir)
	c.Source.Templates = filepath.Clean(c.Source.Templates)
	c.Source.Pages = filepath.Clean(c.Source.Pages)
	c.Output.Directory = filepath.Clean(c.Output.Directory)
}

// Validate checks the configuration for values sitegen cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", c.Server.Port, "port must be between 1 and 65535")
	}
	debounce := c.DebounceWindow()
	if debounce < 0 {
		return invalid("watch.debounce", debounce.String(), "debounce must not be negative")
	}
	if debounce > 0 && c.Watch.MaxDelay < debounce {
		return invalid("watch.max_delay", c.Watch.MaxDelay.String(), "max_delay must not be shorter than debounce")
	}
	if c.Watch.RebuildEvery < 0 {
		return invalid("watch.rebuild_every", c.Watch.RebuildEvery.String(), "rebuild_every must not be negative")
	}
	if c.History.Limit < 0 {
		return invalid("history.limit", c.History.Limit, "limit must not be negative")
	}
	for field, dir := range map[string]string{
		"source.templates": c.Source.Templates,
		"source.pages":     c.Source.Pages,
	} {
		if filepath.IsAbs(dir) || dir == ".." || strings.HasPrefix(dir, ".."+string(filepath.Separator)) {
			return invalid(field, dir, "must be a path inside source.dir")
		}
	}
	if c.Source.Templates == c.Source.Pages {
		return invalid("source.pages", c.Source.Pages, "templates and pages must be different directories")
	}
	if within(c.Output.Directory, c.Source.Dir) {
		return invalid("output.directory", c.Output.Directory, "output must not be inside the watched source directory")
	}
	return nil
}

func invalid(field string, value any, msg string) error {
	return errors.ConfigError(msg).
		WithContext("field", field).
		WithContext("value", value).
		Build()
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	absPath, err1 := filepath.Abs(path)
	absDir, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
