package build

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/markdown"
)

type recordingNotifier struct {
	mu      sync.Mutex
	results []*PassResult
}

func (n *recordingNotifier) Notify(_ context.Context, r *PassResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

func newSite(t *testing.T, files map[string]string) (billy.Filesystem, string, *Orchestrator, *recordingNotifier) {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("templates", 0o755))
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	public := t.TempDir()
	o := NewOrchestrator(Options{
		Source:    fs,
		PublicDir: public,
		Converter: markdown.NewConverter(markdown.Options{}),
		Revision:  func() (string, error) { return "deadbeef", nil },
	})
	n := &recordingNotifier{}
	o.AddNotifier(n)
	return fs, public, o, n
}

func readOutput(t *testing.T, public, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(public, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestRun_TemplateWrapsPage(t *testing.T) {
	_, public, o, n := newSite(t, map[string]string{
		"templates/default.txt": "title: T\n<h1>{{title}}</h1>{{body}}",
		"pages/hello.md":        "title: Hi\nHello **world**",
	})

	res, err := o.Run(t.Context(), "startup")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, 1, res.Templates)
	require.Equal(t, 1, res.PagesRendered)
	require.Equal(t, "deadbeef", res.Revision)
	require.NotEmpty(t, res.ID)
	require.NotEmpty(t, res.Fingerprint)
	require.Equal(t, 1, n.count())

	require.Equal(t, "<h1>Hi</h1><p>Hello <strong>world</strong></p>\n", readOutput(t, public, "hello.html"))
}

func TestRun_MissingTemplatePassesBodyThrough(t *testing.T) {
	_, public, o, _ := newSite(t, map[string]string{
		"templates/default.txt": "<h1>{{title}}</h1>{{body}}",
		"pages/raw.md":          "template: missing\nHello **world**",
	})

	_, err := o.Run(t.Context(), "startup")
	require.NoError(t, err)
	require.Equal(t, "<p>Hello <strong>world</strong></p>\n", readOutput(t, public, "raw.html"))
}

func TestRun_CollidingTemplateNamesLastPathWins(t *testing.T) {
	_, public, o, _ := newSite(t, map[string]string{
		"templates/a/default.html": "A:{{body}}",
		"templates/z/default.html": "Z:{{body}}",
		"pages/p.md":               "x",
	})

	for range 3 {
		res, err := o.Run(t.Context(), "startup")
		require.NoError(t, err)
		require.Equal(t, 1, res.Templates)
		require.Equal(t, "Z:<p>x</p>\n", readOutput(t, public, "p.html"))
	}
}

func TestRun_OutputMirrorsPagesTree(t *testing.T) {
	_, public, o, _ := newSite(t, map[string]string{
		"pages/index.md":          "# Home",
		"pages/docs/guide.md":     "# Guide",
		"pages/docs/img/logo.png": "png",
		"pages/.draft.md":         "# Draft",
	})

	res, err := o.Run(t.Context(), "startup")
	require.NoError(t, err)
	require.Equal(t, 2, res.PagesRendered)
	require.Equal(t, 1, res.PagesSkipped)

	require.FileExists(t, filepath.Join(public, "index.html"))
	require.FileExists(t, filepath.Join(public, "docs", "guide.html"))
	require.NoFileExists(t, filepath.Join(public, "docs", "img", "logo.html"))
	require.NoFileExists(t, filepath.Join(public, "docs", "img", "logo.png"))
	require.NoFileExists(t, filepath.Join(public, ".draft.html"))
	require.NoDirExists(t, filepath.Join(public, "pages"))
}

func TestRun_MissingPagesDirFailsWithoutReload(t *testing.T) {
	_, _, o, n := newSite(t, map[string]string{
		"templates/default.txt": "{{body}}",
	})

	res, err := o.Run(t.Context(), "startup")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
	require.Equal(t, StatusFailed, res.Status)
	require.NotEmpty(t, res.Error)
	require.Zero(t, n.count())
}

func TestRun_FileFailureIsPartial(t *testing.T) {
	_, public, o, n := newSite(t, map[string]string{
		"templates/default.txt": "{{body}}",
		"pages/bad.md":          "template: ../x\nbody",
		"pages/good.md":         "fine",
	})

	res, err := o.Run(t.Context(), "startup")
	require.NoError(t, err)
	require.Equal(t, StatusPartial, res.Status)
	require.Len(t, res.Failures, 1)
	require.Equal(t, PhasePages, res.Failures[0].Phase)
	require.Equal(t, 1, res.PagesRendered)
	require.Equal(t, "<p>fine</p>\n", readOutput(t, public, "good.html"))
	require.Equal(t, 1, n.count())
}

func TestRun_BrokenTemplateRecordedAndPagesPassThrough(t *testing.T) {
	_, public, o, _ := newSite(t, map[string]string{
		"templates/default.txt": "{{#open}}",
		"pages/a.md":            "text",
	})

	res, err := o.Run(t.Context(), "startup")
	require.NoError(t, err)
	require.Equal(t, StatusPartial, res.Status)
	require.Equal(t, PhaseTemplates, res.Failures[0].Phase)
	require.Equal(t, "<p>text</p>\n", readOutput(t, public, "a.html"))
}

func TestRun_FingerprintTracksOutput(t *testing.T) {
	fs, _, o, _ := newSite(t, map[string]string{
		"pages/a.md": "one",
	})

	first, err := o.Run(t.Context(), "startup")
	require.NoError(t, err)
	again, err := o.Run(t.Context(), "fs_change")
	require.NoError(t, err)
	require.Equal(t, first.Fingerprint, again.Fingerprint)
	require.NotEqual(t, first.ID, again.ID)

	require.NoError(t, util.WriteFile(fs, "pages/a.md", []byte("two"), 0o644))
	changed, err := o.Run(t.Context(), "fs_change")
	require.NoError(t, err)
	require.NotEqual(t, first.Fingerprint, changed.Fingerprint)
}

func TestRun_CancelledContext(t *testing.T) {
	_, _, o, n := newSite(t, map[string]string{
		"templates/default.txt": "{{body}}",
		"pages/a.md":            "x",
	})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := o.Run(ctx, "shutdown")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StatusCancelled, res.Status)
	require.Zero(t, n.count())
}

func TestRun_MissingTemplatesDirFails(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "pages/a.md", []byte("x"), 0o644))
	o := NewOrchestrator(Options{Source: fs, PublicDir: t.TempDir(), Converter: markdown.NewConverter(markdown.Options{})})

	res, err := o.Run(t.Context(), "startup")
	require.Error(t, err)
	require.Equal(t, StatusFailed, res.Status)
	require.Zero(t, res.PagesRendered)
}

func TestRun_NotifierFuncErrorDoesNotFailPass(t *testing.T) {
	_, _, o, _ := newSite(t, map[string]string{"pages/a.md": "x"})
	o.AddNotifier(NotifierFunc(func(context.Context, *PassResult) error {
		return ferrors.NetworkError("publish").Build()
	}))

	res, err := o.Run(t.Context(), "startup")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
}
