// Package config loads sitegen.yaml.
//
// A missing default config file is not an error: the defaults reproduce the
// built-in layout (src/templates, src/pages, public, port 3000).
package config

import (
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "sitegen.yaml"

// Config is the complete sitegen configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Output     OutputConfig     `yaml:"output"`
	Server     ServerConfig     `yaml:"server"`
	Watch      WatchConfig      `yaml:"watch"`
	Markdown   MarkdownConfig   `yaml:"markdown"`
	LiveReload LiveReloadConfig `yaml:"livereload"`
	History    HistoryConfig    `yaml:"history"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig locates the source tree. Templates and Pages are relative to Dir.
type SourceConfig struct {
	Dir       string `yaml:"dir"`
	Templates string `yaml:"templates"`
	Pages     string `yaml:"pages"`
}

// OutputConfig locates the public root.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// ServerConfig configures the preview HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WatchConfig tunes change detection and rebuild coalescing.
type WatchConfig struct {
	// Debounce is the quiet window; an explicit 0 starts one pass per change.
	Debounce     *time.Duration `yaml:"debounce"`
	MaxDelay     time.Duration  `yaml:"max_delay"`
	RebuildEvery time.Duration  `yaml:"rebuild_every"`
}

// MarkdownConfig tunes content conversion.
type MarkdownConfig struct {
	// RewriteLinks turns relative links to .md pages into .html links.
	RewriteLinks *bool `yaml:"rewrite_links"`

	// Highlight enables syntax highlighting of fenced code blocks.
	Highlight      *bool  `yaml:"highlight"`
	HighlightStyle string `yaml:"highlight_style"`
}

// LiveReloadConfig configures reload notifications.
type LiveReloadConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// HistoryConfig configures the pass history database.
type HistoryConfig struct {
	// Path of the SQLite file; ":memory:" keeps history for the process lifetime.
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the config file at path. When path is the default and does
// not exist, defaults are returned. A .env file in the working directory is
// loaded first without overriding the environment, and ${VAR} references in
// the file are expanded.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) && path == DefaultPath {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", path).
			Build()
	}
	return Parse(data)
}

// Parse decodes, defaults, normalizes and validates config data.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse config").Build()
	}
	applyDefaults(cfg)
	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles() error {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "failed to load env file").
				WithContext("path", name).
				Build()
		}
	}
	return nil
}

// RewriteLinks reports the effective markdown link rewrite setting.
func (c *Config) RewriteLinks() bool { return boolOr(c.Markdown.RewriteLinks, true) }

// Highlight reports whether fenced code blocks are highlighted.
func (c *Config) Highlight() bool { return boolOr(c.Markdown.Highlight, true) }

// LiveReloadEnabled reports whether reload endpoints and injection are on.
func (c *Config) LiveReloadEnabled() bool { return boolOr(c.LiveReload.Enabled, true) }

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool { return boolOr(c.Metrics.Enabled, true) }

// DebounceWindow returns the quiet window, DefaultDebounce when unset.
func (c *Config) DebounceWindow() time.Duration {
	if c.Watch.Debounce == nil {
		return DefaultDebounce
	}
	return *c.Watch.Debounce
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
