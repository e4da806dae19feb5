package history

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStorage, "open pass history").
			WithContext("path", dbPath).
			Build()
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.CategoryStorage, "initialize pass history schema").
			WithContext("path", dbPath).
			Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS passes (
		id TEXT PRIMARY KEY,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		pages_rendered INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		fingerprint TEXT,
		revision TEXT,
		result BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_passes_started_at ON passes(started_at);
	CREATE INDEX IF NOT EXISTS idx_passes_status ON passes(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Record(ctx context.Context, result *build.PassResult) error {
	if result == nil || result.ID == "" {
		return errors.ValidationError("pass result with id is required").Build()
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "encode pass result").Build()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO passes
			(id, reason, status, started_at, duration_ms, pages_rendered, failures, fingerprint, revision, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.Reason, string(result.Status), result.StartTime.UnixNano(),
		result.Duration.Milliseconds(), result.PagesRendered, len(result.Failures),
		result.Fingerprint, result.Revision, payload,
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryStorage, "insert pass result").
			WithContext("pass_id", result.ID).
			Build()
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*build.PassResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT result FROM passes ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStorage, "query pass history").Build()
	}
	defer func() { _ = rows.Close() }()

	var out []*build.PassResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.WrapError(err, errors.CategoryStorage, "scan pass result").Build()
		}
		res, err := decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryStorage, "iterate pass history").Build()
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*build.PassResult, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT result FROM passes WHERE id = ?", id).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundError("pass not found").WithContext("pass_id", id).Build()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStorage, "query pass result").
			WithContext("pass_id", id).
			Build()
	}
	return decode(payload)
}

func decode(payload []byte) (*build.PassResult, error) {
	var res build.PassResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, errors.WrapError(err, errors.CategoryStorage, "decode pass result").Build()
	}
	return &res, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
