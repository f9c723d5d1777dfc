package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/seq-capital/dealflow-cli/internal/db"
	"github.com/seq-capital/dealflow-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       JSONB,
	config_hash TEXT,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS deals (
	url            TEXT PRIMARY KEY,
	id             TEXT NOT NULL,
	title          TEXT NOT NULL,
	category       TEXT NOT NULL,
	source         TEXT NOT NULL,
	asking_price   DOUBLE PRECISION,
	revenue        DOUBLE PRECISION,
	ebitda         DOUBLE PRECISION,
	location       TEXT NOT NULL,
	lat            DOUBLE PRECISION,
	lon            DOUBLE PRECISION,
	ownership      TEXT NOT NULL,
	days_on_market INTEGER NOT NULL DEFAULT 0,
	date_listed    TEXT NOT NULL,
	notes          TEXT,
	contact        TEXT,
	score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	features       JSONB,
	first_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	loc_key    TEXT NOT NULL UNIQUE,
	result     JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_deals_score ON deals(score DESC);
CREATE INDEX IF NOT EXISTS idx_deals_source ON deals(source);
CREATE INDEX IF NOT EXISTS idx_deals_category ON deals(category);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_loc_key ON geocode_cache(loc_key);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires ON geocode_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, configHash string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, config_hash, started_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusRunning), configHash, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:         id,
		Status:     model.RunStatusRunning,
		ConfigHash: configHash,
		StartedAt:  now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, finished_at = $3 WHERE id = $4`,
		string(model.RunStatusCompleted), statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var statsJSON []byte
	var configHash, errMsg *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, stats, config_hash, error, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &statsJSON, &configHash, &errMsg, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	if configHash != nil {
		r.ConfigHash = *configHash
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, stats, config_hash, error, started_at, finished_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var statsJSON []byte
		var configHash, errMsg *string

		if err := rows.Scan(&r.ID, &r.Status, &statsJSON, &configHash, &errMsg, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(statsJSON) > 0 {
			if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal stats")
			}
		}
		if configHash != nil {
			r.ConfigHash = *configHash
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// dealColumns is the column order used for bulk upserts. Keep in sync with
// dealRow.
var dealColumns = []string{
	"url", "id", "title", "category", "source", "asking_price", "revenue",
	"ebitda", "location", "lat", "lon", "ownership", "days_on_market",
	"date_listed", "notes", "contact", "score", "features", "updated_at",
}

// dealCoalesceColumns keep their stored value when the incoming row has NULL.
var dealCoalesceColumns = []string{"asking_price", "revenue", "ebitda", "lat", "lon", "contact"}

func dealRow(d model.Deal, now time.Time) ([]any, error) {
	var featuresJSON []byte
	if d.Features != nil {
		var err error
		featuresJSON, err = json.Marshal(d.Features)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: marshal features for %s", d.URL)
		}
	}
	return []any{
		d.URL, d.ID, d.Title, d.Category, d.Source, d.AskingPrice, d.Revenue,
		d.EBITDA, d.Location, d.Lat, d.Lon, d.Ownership, d.DaysOnMarket,
		d.DateListed, d.Notes, d.Contact, d.Score, featuresJSON, now,
	}, nil
}

// UpsertDeals bulk-upserts deals keyed by URL via COPY into a temp table.
func (s *PostgresStore) UpsertDeals(ctx context.Context, deals []model.Deal) (int64, error) {
	if len(deals) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(deals))
	for _, d := range deals {
		row, err := dealRow(d, now)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "deals",
		Columns:      dealColumns,
		ConflictKeys: []string{"url"},
		CoalesceCols: dealCoalesceColumns,
	}, rows)
}

func (s *PostgresStore) ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error) {
	query := `SELECT url, id, title, category, source, asking_price, revenue, ebitda,
		location, lat, lon, ownership, days_on_market, date_listed, notes, contact,
		score, features FROM deals WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	if filter.Category != "" {
		query += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, filter.Category)
		argIdx++
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	query += ` ORDER BY score DESC, url ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		var notes, contact *string
		var featuresJSON []byte

		if err := rows.Scan(&d.URL, &d.ID, &d.Title, &d.Category, &d.Source,
			&d.AskingPrice, &d.Revenue, &d.EBITDA,
			&d.Location, &d.Lat, &d.Lon, &d.Ownership,
			&d.DaysOnMarket, &d.DateListed, &notes, &contact,
			&d.Score, &featuresJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		if notes != nil {
			d.Notes = *notes
		}
		d.Contact = contact
		if len(featuresJSON) > 0 {
			d.Features = &model.Features{}
			if err := json.Unmarshal(featuresJSON, d.Features); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal features")
			}
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "postgres: list deals iterate")
}

func (s *PostgresStore) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, COUNT(*) FROM deals GROUP BY source`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by source")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source count")
		}
		counts[source] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by source iterate")
}

func (s *PostgresStore) GetCachedGeocode(ctx context.Context, locKey string) ([]byte, error) {
	var result []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM geocode_cache
		 WHERE loc_key = $1 AND expires_at > now()
		 ORDER BY cached_at DESC LIMIT 1`,
		locKey,
	).Scan(&result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached geocode")
	}
	return result, nil
}

func (s *PostgresStore) SetCachedGeocode(ctx context.Context, locKey string, data []byte, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (id, loc_key, result, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (loc_key) DO UPDATE SET result = $3, cached_at = $4, expires_at = $5`,
		id, locKey, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached geocode")
}

func (s *PostgresStore) DeleteExpiredGeocodes(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM geocode_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired geocodes")
	}
	return int(tag.RowsAffected()), nil
}
