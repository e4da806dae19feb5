package render

import (
	"os"
	"path/filepath"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/filetree"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/markdown"
	"git.home.luguber.info/inful/sitegen/internal/templates"
)

func writeFiles(t *testing.T, fs billy.Filesystem, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
}

func setup(t *testing.T, files map[string]string) (*Renderer, *templates.Registry) {
	t.Helper()
	fs := memfs.New()
	writeFiles(t, fs, files)
	require.NoError(t, fs.MkdirAll("templates", 0o755))

	tree, err := filetree.Walk(t.Context(), fs, "templates")
	require.NoError(t, err)
	reg, err := (&templates.Loader{FS: fs}).Load(t.Context(), tree)
	require.NoError(t, err)

	return &Renderer{
		Source:    fs,
		PublicDir: t.TempDir(),
		Converter: markdown.NewConverter(markdown.Options{}),
		Site:      Site{PassID: "pass-1", Revision: "abc123"},
	}, reg
}

func TestRender_TemplateWrapsConvertedBody(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"templates/default.txt": "title: T\n<h1>{{title}}</h1>{{body}}",
		"pages/hello.md":        "title: Hi\nHello **world**",
	})

	page, err := r.Render(t.Context(), reg, "hello.md", "", "pages/hello.md")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(r.PublicDir, "hello.html"), page.Output)

	out, err := os.ReadFile(page.Output)
	require.NoError(t, err)
	require.Equal(t, "<h1>Hi</h1><p>Hello <strong>world</strong></p>\n", string(out))
}

func TestRender_MissingTemplatePassesThrough(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"templates/default.txt": "<h1>{{title}}</h1>{{body}}",
		"pages/raw.md":          "template: missing\nHello **world**",
	})

	page, err := r.Build(reg, "raw.md", "", "pages/raw.md")
	require.NoError(t, err)
	require.False(t, page.Templated)
	require.Equal(t, "missing", page.Template)
	require.Equal(t, "<p>Hello <strong>world</strong></p>\n", page.HTML)
}

func TestRender_NonMarkdownIsNotWritten(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"pages/notes.txt": "title: x\nnot markdown",
		"pages/image.png": "\x89PNG",
	})

	for _, name := range []string{"notes.txt", "image.png"} {
		page, err := r.Render(t.Context(), reg, name, "", "pages/"+name)
		require.NoError(t, err)
		require.Empty(t, page.Output)
	}

	entries, err := os.ReadDir(r.PublicDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRender_NestedPathCreatesDirectories(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"pages/blog/2024/post.md": "# Post",
	})

	page, err := r.Render(t.Context(), reg, "post.md", "blog/2024/", "pages/blog/2024/post.md")
	require.NoError(t, err)
	require.NotEmpty(t, page.Output)

	info, err := os.Stat(filepath.Join(r.PublicDir, "blog", "2024", "post.html"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestRender_SamePageTwiceIsIdentical(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"templates/default.txt": "<title>{{title}}</title>{{body}}{{site.pass}}",
		"pages/a.md":            "Some *text*",
	})

	first, err := r.Build(reg, "a.md", "", "pages/a.md")
	require.NoError(t, err)
	second, err := r.Build(reg, "a.md", "", "pages/a.md")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRender_ContextDefaults(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"templates/default.txt":         "{{title}}|{{page}}|{{path}}|{{site.revision}}|{{site.pass}}|{{author}}",
		"pages/docs/getting-started.md": "author: ada\nbody",
	})

	page, err := r.Build(reg, "getting-started.md", "docs/", "pages/docs/getting-started.md")
	require.NoError(t, err)
	require.Equal(t, "Getting Started|getting-started|docs/|abc123|pass-1|ada", page.HTML)
}

func TestRender_TemplateDefaultTitleBeatsDerived(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"templates/default.txt": "title: Site\n{{title}}",
		"pages/about.md":        "text",
	})

	page, err := r.Build(reg, "about.md", "", "pages/about.md")
	require.NoError(t, err)
	require.Equal(t, "Site", page.HTML)
}

func TestRender_PageMetadataOverridesDerivedKeys(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"templates/default.txt": "[{{path}}|{{page}}|{{site}}]",
		"pages/hello.md":        "path: /custom/route\npage: landing\nsite: docs\nHello",
	})

	page, err := r.Build(reg, "hello.md", "", "pages/hello.md")
	require.NoError(t, err)
	require.Equal(t, "[/custom/route|landing|docs]", page.HTML)
}

func TestRender_LeadingThematicBreakIsContent(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"pages/intro.md": "---\nIntro paragraph.\n---\nMore",
	})

	page, err := r.Render(t.Context(), reg, "intro.md", "", "pages/intro.md")
	require.NoError(t, err)
	out, err := os.ReadFile(page.Output)
	require.NoError(t, err)
	require.Contains(t, string(out), "<hr")
	require.Contains(t, string(out), "Intro paragraph.")
	require.Contains(t, string(out), "<p>More</p>")
}

func TestRender_InvalidFrontMatterFailsFile(t *testing.T) {
	r, reg := setup(t, map[string]string{
		"pages/bad.md": "template: ../escape\nbody",
	})

	page, err := r.Render(t.Context(), reg, "bad.md", "", "pages/bad.md")
	require.Error(t, err)
	require.Empty(t, page.Output)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestRender_WriteFailureIsFileSystemError(t *testing.T) {
	r, reg := setup(t, map[string]string{"pages/a.md": "x"})
	blocker := filepath.Join(r.PublicDir, "sub")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0o644))

	_, err := r.Render(t.Context(), reg, "a.md", "sub/", "pages/a.md")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}

func TestTitleFromName(t *testing.T) {
	require.Equal(t, "Hello World", TitleFromName("hello-world"))
	require.Equal(t, "Release Notes 2024", TitleFromName("release_notes_2024"))
	require.Equal(t, "Index", TitleFromName("index"))
}
