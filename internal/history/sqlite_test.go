package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/build"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func passAt(id string, start time.Time, status build.Status) *build.PassResult {
	return &build.PassResult{
		ID:            id,
		Reason:        "fs_change",
		Status:        status,
		StartTime:     start,
		EndTime:       start.Add(40 * time.Millisecond),
		Duration:      40 * time.Millisecond,
		PagesRendered: 2,
	}
}

func TestSQLiteStore_RecordAndGet(t *testing.T) {
	s := newStore(t)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	res := passAt("p1", start, build.StatusPartial)
	res.Failures = []build.FileFailure{{Phase: build.PhasePages, File: "pages/bad.md", Error: "boom"}}
	res.Fingerprint = "abc"
	require.NoError(t, s.Record(t.Context(), res))

	got, err := s.Get(t.Context(), "p1")
	require.NoError(t, err)
	require.Equal(t, build.StatusPartial, got.Status)
	require.Equal(t, "abc", got.Fingerprint)
	require.Len(t, got.Failures, 1)
	require.Equal(t, "pages/bad.md", got.Failures[0].File)
	require.True(t, start.Equal(got.StartTime))
}

func TestSQLiteStore_GetMissingIsNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.Get(t.Context(), "nope")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestSQLiteStore_ListNewestFirstWithLimit(t *testing.T) {
	s := newStore(t)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(t.Context(), passAt(id, base.Add(time.Duration(i)*time.Second), build.StatusSuccess)))
	}

	all, err := s.List(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	two, err := s.List(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	require.Equal(t, "c", two[0].ID)
}

func TestSQLiteStore_RecordReplaces(t *testing.T) {
	s := newStore(t)
	start := time.Now()
	require.NoError(t, s.Record(t.Context(), passAt("p", start, build.StatusFailed)))
	require.NoError(t, s.Record(t.Context(), passAt("p", start, build.StatusSuccess)))

	all, err := s.List(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, build.StatusSuccess, all[0].Status)
}

func TestSQLiteStore_RecordRequiresID(t *testing.T) {
	s := newStore(t)
	err := s.Record(t.Context(), &build.PassResult{})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(t.Context(), passAt("keep", time.Now(), build.StatusSuccess)))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Get(t.Context(), "keep")
	require.NoError(t, err)
	require.Equal(t, "keep", got.ID)
}
