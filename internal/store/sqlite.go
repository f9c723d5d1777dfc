package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT,
	config_hash TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS deals (
	url            TEXT PRIMARY KEY,
	id             TEXT NOT NULL,
	title          TEXT NOT NULL,
	category       TEXT NOT NULL,
	source         TEXT NOT NULL,
	asking_price   REAL,
	revenue        REAL,
	ebitda         REAL,
	location       TEXT NOT NULL,
	lat            REAL,
	lon            REAL,
	ownership      TEXT NOT NULL,
	days_on_market INTEGER NOT NULL DEFAULT 0,
	date_listed    TEXT NOT NULL,
	notes          TEXT,
	contact        TEXT,
	score          REAL NOT NULL DEFAULT 0,
	features       TEXT,
	first_seen_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	id         TEXT PRIMARY KEY,
	loc_key    TEXT NOT NULL UNIQUE,
	result     TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_deals_score ON deals(score);
CREATE INDEX IF NOT EXISTS idx_deals_source ON deals(source);
CREATE INDEX IF NOT EXISTS idx_deals_category ON deals(category);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_loc_key ON geocode_cache(loc_key);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires ON geocode_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, configHash string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, config_hash, started_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), configHash, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:         id,
		Status:     model.RunStatusRunning,
		ConfigHash: configHash,
		StartedAt:  now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, stats, config_hash, error, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, stats, config_hash, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// UpsertDeals writes deals keyed by URL inside one transaction. Enrichment
// columns (financials, coordinates, contact) use COALESCE on conflict so a
// re-scraped bare listing does not erase values filled in earlier.
func (s *SQLiteStore) UpsertDeals(ctx context.Context, deals []model.Deal) (int64, error) {
	if len(deals) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deals (
			url, id, title, category, source, asking_price, revenue, ebitda,
			location, lat, lon, ownership, days_on_market, date_listed,
			notes, contact, score, features, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			id = excluded.id,
			title = excluded.title,
			category = excluded.category,
			source = excluded.source,
			asking_price = COALESCE(excluded.asking_price, deals.asking_price),
			revenue = COALESCE(excluded.revenue, deals.revenue),
			ebitda = COALESCE(excluded.ebitda, deals.ebitda),
			location = excluded.location,
			lat = COALESCE(excluded.lat, deals.lat),
			lon = COALESCE(excluded.lon, deals.lon),
			ownership = excluded.ownership,
			days_on_market = excluded.days_on_market,
			date_listed = excluded.date_listed,
			notes = excluded.notes,
			contact = COALESCE(excluded.contact, deals.contact),
			score = excluded.score,
			features = excluded.features,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var written int64
	for _, d := range deals {
		featuresJSON, err := marshalFeatures(d.Features)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			d.URL, d.ID, d.Title, d.Category, d.Source,
			d.AskingPrice, d.Revenue, d.EBITDA,
			d.Location, d.Lat, d.Lon, d.Ownership,
			d.DaysOnMarket, d.DateListed, d.Notes, d.Contact,
			d.Score, featuresJSON, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert deal %s", d.URL)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert tx")
	}
	return written, nil
}

func (s *SQLiteStore) ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error) {
	query := `SELECT url, id, title, category, source, asking_price, revenue, ebitda,
		location, lat, lon, ownership, days_on_market, date_listed, notes, contact,
		score, features FROM deals WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.MinScore > 0 {
		query += ` AND score >= ?`
		args = append(args, filter.MinScore)
	}
	query += ` ORDER BY score DESC, url ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, eris.Wrap(rows.Err(), "sqlite: list deals iterate")
}

func (s *SQLiteStore) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM deals GROUP BY source`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by source")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source count")
		}
		counts[source] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by source iterate")
}

func (s *SQLiteStore) GetCachedGeocode(ctx context.Context, locKey string) ([]byte, error) {
	var result string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM geocode_cache
		 WHERE loc_key = ? AND expires_at > datetime('now')
		 ORDER BY cached_at DESC LIMIT 1`,
		locKey,
	).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached geocode")
	}
	return []byte(result), nil
}

func (s *SQLiteStore) SetCachedGeocode(ctx context.Context, locKey string, data []byte, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (id, loc_key, result, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(loc_key) DO UPDATE SET result = excluded.result, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		id, locKey, string(data), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached geocode")
}

func (s *SQLiteStore) DeleteExpiredGeocodes(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM geocode_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired geocodes")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var statsJSON, configHash, errMsg sql.NullString

	err := row.Scan(&r.ID, &r.Status, &statsJSON, &configHash, &errMsg, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
	}
	r.ConfigHash = configHash.String
	r.Error = errMsg.String
	return &r, nil
}

func scanDeal(row scannable) (*model.Deal, error) {
	var d model.Deal
	var notes, contact, featuresJSON sql.NullString

	err := row.Scan(&d.URL, &d.ID, &d.Title, &d.Category, &d.Source,
		&d.AskingPrice, &d.Revenue, &d.EBITDA,
		&d.Location, &d.Lat, &d.Lon, &d.Ownership,
		&d.DaysOnMarket, &d.DateListed, &notes, &contact,
		&d.Score, &featuresJSON)
	if err != nil {
		return nil, eris.Wrap(err, "scan deal")
	}

	d.Notes = notes.String
	if contact.Valid {
		d.Contact = &contact.String
	}
	if featuresJSON.Valid && featuresJSON.String != "" {
		d.Features = &model.Features{}
		if err := json.Unmarshal([]byte(featuresJSON.String), d.Features); err != nil {
			return nil, eris.Wrap(err, "unmarshal features")
		}
	}
	return &d, nil
}

func marshalFeatures(f *model.Features) (any, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, eris.Wrap(err, "marshal features")
	}
	return string(b), nil
}
