package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS apps (
	name       TEXT PRIMARY KEY,
	definition TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	app         TEXT NOT NULL REFERENCES apps(name) ON DELETE CASCADE,
	outputs     TEXT NOT NULL,
	deadlocked  INTEGER NOT NULL DEFAULT 0,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_app ON runs(app, started_at);
`

// SQLite implements Store on a single-file database.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// The parent directory is created if missing. Pass ":memory:" for an
// ephemeral store.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection only: sqlite allows a single writer, and a second
	// connection to ":memory:" would see a different database.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error { return s.db.Close() }

// SaveApp inserts or replaces the flow stored under name.
func (s *SQLite) SaveApp(ctx context.Context, name string, f *flow.Flow) error {
	if name == "" {
		return errors.New("app name must not be empty")
	}
	definition, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO apps(name, definition, created_at, updated_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		name, string(definition), now, now,
	)
	if err != nil {
		return fmt.Errorf("save app %q: %w", name, err)
	}
	return nil
}

// GetApp returns the app stored under name, or ErrNotFound.
func (s *SQLite) GetApp(ctx context.Context, name string) (*App, error) {
	var definition, created, updated string
	err := s.db.QueryRowContext(ctx,
		"SELECT definition, created_at, updated_at FROM apps WHERE name = ?", name,
	).Scan(&definition, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get app %q: %w", name, err)
	}
	return buildApp(name, definition, created, updated)
}

// ListApps returns all stored apps ordered by name.
func (s *SQLite) ListApps(ctx context.Context) ([]*App, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, definition, created_at, updated_at FROM apps ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()
	var apps []*App
	for rows.Next() {
		var name, definition, created, updated string
		if err := rows.Scan(&name, &definition, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		app, err := buildApp(name, definition, created, updated)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return apps, nil
}

// DeleteApp removes the app and, via the foreign key, its run history.
func (s *SQLite) DeleteApp(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM apps WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete app %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete app %q: %w", name, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRun records a run for an existing app and fills in rec.ID.
func (s *SQLite) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec == nil {
		return errors.New("run record is nil")
	}
	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	started := rec.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO runs(app, outputs, deadlocked, started_at, duration_ms) VALUES(?, ?, ?, ?, ?)",
		rec.App, string(outputs), boolInt(rec.Deadlocked),
		started.UTC().Format(time.RFC3339Nano), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save run for %q: %w", rec.App, err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("save run for %q: %w", rec.App, err)
	}
	return nil
}

// ListRuns returns runs for the app, newest first.
func (s *SQLite) ListRuns(ctx context.Context, app string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite treats a negative LIMIT as unbounded
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, outputs, deadlocked, started_at, duration_ms
		 FROM runs WHERE app = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		app, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs for %q: %w", app, err)
	}
	defer rows.Close()
	var recs []*RunRecord
	for rows.Next() {
		rec := &RunRecord{App: app}
		var outputs, started string
		var deadlocked int
		var durationMS int64
		if err := rows.Scan(&rec.ID, &outputs, &deadlocked, &started, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(outputs), &rec.Outputs); err != nil {
			return nil, fmt.Errorf("run %d outputs: %w", rec.ID, err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %d started_at: %w", rec.ID, err)
		}
		rec.Deadlocked = deadlocked == 1
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs for %q: %w", app, err)
	}
	return recs, nil
}

func buildApp(name, definition, created, updated string) (*App, error) {
	f, err := flow.Parse([]byte(definition))
	if err != nil {
		return nil, fmt.Errorf("app %q: %w", name, err)
	}
	app := &App{Name: name, Flow: f}
	if app.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("app %q created_at: %w", name, err)
	}
	if app.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("app %q updated_at: %w", name, err)
	}
	return app, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
