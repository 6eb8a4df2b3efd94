// Package store persists named flows ("apps") and their run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// ErrNotFound is returned when the named app does not exist.
var ErrNotFound = errors.New("store: not found")

// App is a saved flow definition plus bookkeeping timestamps.
type App struct {
	Name      string
	Flow      *flow.Flow
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunRecord captures the outcome of one execution of a saved app.
type RunRecord struct {
	ID         int64
	App        string
	Outputs    map[string]any
	Deadlocked bool
	StartedAt  time.Time
	Duration   time.Duration
}

// Store persists apps and their run history.
type Store interface {
	// SaveApp inserts the flow under name, or replaces an existing
	// definition while keeping its creation time.
	SaveApp(ctx context.Context, name string, f *flow.Flow) error
	GetApp(ctx context.Context, name string) (*App, error)
	// ListApps returns all apps ordered by name. Definitions are loaded.
	ListApps(ctx context.Context) ([]*App, error)
	// DeleteApp removes the app and its run history.
	DeleteApp(ctx context.Context, name string) error
	// SaveRun records a run for an existing app and fills in rec.ID.
	SaveRun(ctx context.Context, rec *RunRecord) error
	// ListRuns returns the most recent runs for the app, newest first.
	// A limit of zero or less means no limit.
	ListRuns(ctx context.Context, app string, limit int) ([]*RunRecord, error)
	Close() error
}
