package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, stats, config_hash, error, started_at, finished_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, stats = \$2, finished_at = \$3 WHERE id = \$4`).
		WithArgs("completed", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", model.RunStats{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs \(id, status, config_hash, started_at\) VALUES \(\$1, \$2, \$3, \$4\)`).
		WithArgs(pgxmock.AnyArg(), "running", "deadbeef", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, "deadbeef", run.ConfigHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedGeocode_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT result FROM geocode_cache`).
		WithArgs("unknown place").
		WillReturnError(pgx.ErrNoRows)

	result, err := s.GetCachedGeocode(context.Background(), "unknown place")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedGeocode_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "brisbane qld", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedGeocode(context.Background(), "brisbane qld",
		[]byte(`{"lat":-27.47,"lon":153.02,"found":true}`), 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDeals_Flow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_deals"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_deals"}, dealColumns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "deals" .+ ON CONFLICT \("url"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertDeals(context.Background(), []model.Deal{sampleDeal("https://seekbusiness.com.au/listing/42")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDeals_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	n, err := s.UpsertDeals(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPostgresStore_CountBySource(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"source", "count"}).
		AddRow("SeekBusiness", 12).
		AddRow("CommercialRE", 3)

	mock.ExpectQuery(`SELECT source, COUNT\(\*\) FROM deals GROUP BY source`).
		WillReturnRows(rows)

	counts, err := s.CountBySource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"SeekBusiness": 12, "CommercialRE": 3}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDeals(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"url", "id", "title", "category", "source", "asking_price", "revenue",
		"ebitda", "location", "lat", "lon", "ownership", "days_on_market",
		"date_listed", "notes", "contact", "score", "features",
	}).AddRow(
		"https://seekbusiness.com.au/listing/42", "SeekBusiness-0042137",
		"Busy Cafe Northside", "Cafe/Restaurant", "SeekBusiness",
		ptrFloat64(450000), ptrFloat64(1200000), ptrFloat64(300000),
		"Brisbane QLD", ptrFloat64(-27.47), ptrFloat64(153.02), "Leasehold",
		12, "2025-08-10", (*string)(nil), (*string)(nil), 0.731,
		[]byte(`{"margin":0.833,"price_to_ebitda":0.7,"recency":0.6,"freehold":0.3,"category":1,"proximity":1}`),
	)

	mock.ExpectQuery(`FROM deals WHERE true AND score >= \$1`).
		WithArgs(0.5, 100).
		WillReturnRows(rows)

	deals, err := s.ListDeals(context.Background(), DealFilter{MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "SeekBusiness-0042137", deals[0].ID)
	require.NotNil(t, deals[0].Features)
	assert.InDelta(t, 0.833, deals[0].Features.Margin, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}
