package markdown

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// DefaultHighlightStyle is the chroma style used when none is configured.
const DefaultHighlightStyle = "github"

// Options controls how page bodies are converted.
type Options struct {
	// RewriteLinks turns relative links to `.md` sources into links to the
	// generated `.html` pages.
	RewriteLinks bool
	// Highlight colors fenced code blocks with inline chroma styles.
	Highlight bool
	// HighlightStyle names a chroma style; unknown names use chroma's fallback.
	HighlightStyle string
}

// Converter turns Markdown page bodies into HTML.
//
// GitHub-flavored extensions (tables, strikethrough, autolinks, task lists)
// are enabled and raw HTML passes through unchanged. Fenced code blocks are
// syntax highlighted when Options.Highlight is set.
type Converter struct {
	md goldmark.Markdown
}

// NewConverter builds a Converter. It is safe for concurrent use.
func NewConverter(opts Options) *Converter {
	parserOpts := []parser.Option{parser.WithAutoHeadingID()}
	if opts.RewriteLinks {
		parserOpts = append(parserOpts, parser.WithASTTransformers(
			util.Prioritized(linkRewriter{}, 100),
		))
	}
	exts := []goldmark.Extender{extension.GFM}
	if opts.Highlight {
		style := opts.HighlightStyle
		if style == "" {
			style = DefaultHighlightStyle
		}
		exts = append(exts, highlighting.NewHighlighting(highlighting.WithStyle(style)))
	}
	return &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(exts...),
			goldmark.WithParserOptions(parserOpts...),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Convert renders body to HTML.
func (c *Converter) Convert(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert(body, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type linkRewriter struct{}

func (linkRewriter) Transform(doc *gmast.Document, _ text.Reader, _ parser.Context) {
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if link, ok := n.(*gmast.Link); ok {
			if dest, changed := RewriteLink(string(link.Destination)); changed {
				link.Destination = []byte(dest)
			}
		}
		return gmast.WalkContinue, nil
	})
}

// RewriteLink maps a relative link to a `.md` page onto its `.html` output.
// Absolute URLs and non-Markdown targets are returned unchanged.
func RewriteLink(dest string) (string, bool) {
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Opaque != "" {
		return dest, false
	}
	if !strings.HasSuffix(u.Path, ".md") {
		return dest, false
	}
	u.Path = strings.TrimSuffix(u.Path, ".md") + ".html"
	return u.String(), true
}
