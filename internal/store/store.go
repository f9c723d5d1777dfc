// Package store persists deals, pipeline runs, and the geocode cache.
// Two backends implement the same interface: SQLite for the single-user
// CLI default and Postgres for a shared deployment.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// DealFilter specifies criteria for listing deals. Results always come
// back ordered by score descending.
type DealFilter struct {
	Source   string  `json:"source,omitempty"`
	Category string  `json:"category,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	Offset   int     `json:"offset,omitempty"`
}

// Store defines the persistence interface for the sourcing pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, configHash string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats model.RunStats) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Deals, keyed by listing URL.
	UpsertDeals(ctx context.Context, deals []model.Deal) (int64, error)
	ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error)
	CountBySource(ctx context.Context) (map[string]int, error)

	// Geocode cache. Values are opaque JSON owned by pkg/geocode.
	GetCachedGeocode(ctx context.Context, locKey string) ([]byte, error)
	SetCachedGeocode(ctx context.Context, locKey string, data []byte, ttl time.Duration) error
	DeleteExpiredGeocodes(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns a Store for the configured driver.
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q (want sqlite or postgres)", driver)
	}
}
