package config

import "time"

// Defaults for an unconfigured site.
const (
	DefaultSourceDir     = "src"
	DefaultTemplatesDir  = "templates"
	DefaultPagesDir      = "pages"
	DefaultOutputDir     = "public"
	DefaultPort          = 3000
	DefaultDebounce      = 100 * time.Millisecond
	DefaultMaxDelay      = 2 * time.Second
	DefaultHistoryPath   = ":memory:"
	DefaultHistoryLimit  = 50
	DefaultNATSSubject   = "sitegen.reload"
	DefaultHighlight     = "github"
	defaultMaxDelayRatio = 20
)

func applyDefaults(c *Config) {
	if c.Source.Dir == "" {
		c.Source.Dir = DefaultSourceDir
	}
	if c.Source.Templates == "" {
		c.Source.Templates = DefaultTemplatesDir
	}
	if c.Source.Pages == "" {
		c.Source.Pages = DefaultPagesDir
	}
	if c.Output.Directory == "" {
		c.Output.Directory = DefaultOutputDir
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Watch.Debounce == nil {
		d := DefaultDebounce
		c.Watch.Debounce = &d
	}
	if c.Watch.MaxDelay == 0 {
		c.Watch.MaxDelay = DefaultMaxDelay
		if d := *c.Watch.Debounce * defaultMaxDelayRatio; d > c.Watch.MaxDelay {
			c.Watch.MaxDelay = d
		}
	}
	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
	if c.History.Limit == 0 {
		c.History.Limit = DefaultHistoryLimit
	}
	if c.Markdown.HighlightStyle == "" {
		c.Markdown.HighlightStyle = DefaultHighlight
	}
	if c.LiveReload.NATSSubject == "" {
		c.LiveReload.NATSSubject = DefaultNATSSubject
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
}
