package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptrFloat64(v float64) *float64 { return &v }

func sampleDeal(url string) model.Deal {
	contact := "0400 000 000"
	return model.Deal{
		ID:           "SeekBusiness-0042137",
		Title:        "Busy Cafe Northside",
		Category:     "Cafe/Restaurant",
		Source:       "SeekBusiness",
		URL:          url,
		AskingPrice:  ptrFloat64(450000),
		Revenue:      ptrFloat64(1200000),
		EBITDA:       ptrFloat64(300000),
		Location:     "Brisbane QLD",
		Lat:          ptrFloat64(-27.47),
		Lon:          ptrFloat64(153.02),
		Ownership:    "Leasehold",
		DaysOnMarket: 12,
		DateListed:   "2025-08-10",
		Notes:        "Well established cafe with loyal clientele.",
		Contact:      &contact,
		Score:        0.731,
		Features: &model.Features{
			Margin:        0.833,
			PriceToEBITDA: 0.7,
			Recency:       0.6,
			Freehold:      0.3,
			Category:      1.0,
			Proximity:     1.0,
		},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "ab12cd34")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)
		assert.Equal(t, "ab12cd34", run.ConfigHash)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunStatusRunning, got.Status)
		assert.Equal(t, "ab12cd34", got.ConfigHash)
		assert.Nil(t, got.FinishedAt)
	})

	t.Run("CompleteRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "hash")
		require.NoError(t, err)

		stats := model.RunStats{Sources: 3, Queries: 9, Hits: 42, Deduped: 38, Scored: 38, TopScore: 0.812}
		require.NoError(t, s.CompleteRun(ctx, run.ID, stats))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, got.Status)
		assert.Equal(t, stats, got.Stats)
		require.NotNil(t, got.FinishedAt)
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "hash")
		require.NoError(t, err)

		require.NoError(t, s.FailRun(ctx, run.ID, eris.New("serpapi: missing api key")))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Contains(t, got.Error, "missing api key")
		require.NotNil(t, got.FinishedAt)
	})

	t.Run("CompleteRunNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.CompleteRun(context.Background(), "no-such-run", model.RunStats{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ListRunsFilterAndOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.CreateRun(ctx, "h1")
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, first.ID, model.RunStats{Scored: 5}))

		_, err = s.CreateRun(ctx, "h2")
		require.NoError(t, err)

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		completed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusCompleted})
		require.NoError(t, err)
		require.Len(t, completed, 1)
		assert.Equal(t, first.ID, completed[0].ID)
		assert.Equal(t, 5, completed[0].Stats.Scored)
	})

	t.Run("UpsertAndListDeals", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		d := sampleDeal("https://seekbusiness.com.au/listing/42")
		n, err := s.UpsertDeals(ctx, []model.Deal{d})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		deals, err := s.ListDeals(ctx, DealFilter{})
		require.NoError(t, err)
		require.Len(t, deals, 1)

		got := deals[0]
		assert.Equal(t, d.ID, got.ID)
		assert.Equal(t, d.Title, got.Title)
		assert.Equal(t, d.URL, got.URL)
		require.NotNil(t, got.Revenue)
		assert.InDelta(t, 1200000, *got.Revenue, 0.001)
		require.NotNil(t, got.Contact)
		assert.Equal(t, "0400 000 000", *got.Contact)
		require.NotNil(t, got.Features)
		assert.InDelta(t, 0.833, got.Features.Margin, 0.0001)
		assert.InDelta(t, 0.731, got.Score, 0.0001)
	})

	t.Run("UpsertSameURLReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		d := sampleDeal("https://seekbusiness.com.au/listing/42")
		_, err := s.UpsertDeals(ctx, []model.Deal{d})
		require.NoError(t, err)

		d.Title = "Busy Cafe Northside (Reduced)"
		d.Score = 0.755
		_, err = s.UpsertDeals(ctx, []model.Deal{d})
		require.NoError(t, err)

		deals, err := s.ListDeals(ctx, DealFilter{})
		require.NoError(t, err)
		require.Len(t, deals, 1)
		assert.Equal(t, "Busy Cafe Northside (Reduced)", deals[0].Title)
		assert.InDelta(t, 0.755, deals[0].Score, 0.0001)
	})

	t.Run("UpsertKeepsEnrichedFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		d := sampleDeal("https://seekbusiness.com.au/listing/42")
		_, err := s.UpsertDeals(ctx, []model.Deal{d})
		require.NoError(t, err)

		// A fresh search hit for the same listing carries no financials.
		bare := sampleDeal("https://seekbusiness.com.au/listing/42")
		bare.Revenue = nil
		bare.EBITDA = nil
		bare.Lat = nil
		bare.Lon = nil
		bare.Contact = nil
		_, err = s.UpsertDeals(ctx, []model.Deal{bare})
		require.NoError(t, err)

		deals, err := s.ListDeals(ctx, DealFilter{})
		require.NoError(t, err)
		require.Len(t, deals, 1)
		require.NotNil(t, deals[0].Revenue)
		assert.InDelta(t, 1200000, *deals[0].Revenue, 0.001)
		require.NotNil(t, deals[0].Lat)
		require.NotNil(t, deals[0].Contact)
	})

	t.Run("ListDealsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := sampleDeal("https://a.example.com/1")
		a.Source = "SeekBusiness"
		a.Category = "Cafe/Restaurant"
		a.Score = 0.9
		b := sampleDeal("https://b.example.com/2")
		b.Source = "CommercialRE"
		b.Category = "Services"
		b.Score = 0.4

		_, err := s.UpsertDeals(ctx, []model.Deal{a, b})
		require.NoError(t, err)

		bySource, err := s.ListDeals(ctx, DealFilter{Source: "CommercialRE"})
		require.NoError(t, err)
		require.Len(t, bySource, 1)
		assert.Equal(t, "https://b.example.com/2", bySource[0].URL)

		byScore, err := s.ListDeals(ctx, DealFilter{MinScore: 0.5})
		require.NoError(t, err)
		require.Len(t, byScore, 1)
		assert.Equal(t, "https://a.example.com/1", byScore[0].URL)

		all, err := s.ListDeals(ctx, DealFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		// Highest score first.
		assert.Equal(t, "https://a.example.com/1", all[0].URL)
	})

	t.Run("CountBySource", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		counts, err := s.CountBySource(ctx)
		require.NoError(t, err)
		assert.Empty(t, counts)

		a := sampleDeal("https://a.example.com/1")
		b := sampleDeal("https://a.example.com/2")
		c := sampleDeal("https://b.example.com/1")
		c.Source = "CommercialRE"

		_, err = s.UpsertDeals(ctx, []model.Deal{a, b, c})
		require.NoError(t, err)

		counts, err = s.CountBySource(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"SeekBusiness": 2, "CommercialRE": 1}, counts)
	})

	t.Run("GeocodeCacheRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		got, err := s.GetCachedGeocode(ctx, "brisbane qld")
		require.NoError(t, err)
		assert.Nil(t, got)

		data := []byte(`{"lat":-27.47,"lon":153.02,"found":true}`)
		require.NoError(t, s.SetCachedGeocode(ctx, "brisbane qld", data, time.Hour))

		got, err = s.GetCachedGeocode(ctx, "brisbane qld")
		require.NoError(t, err)
		assert.JSONEq(t, string(data), string(got))

		// Overwrite on the same key.
		updated := []byte(`{"lat":-27.5,"lon":153.0,"found":true}`)
		require.NoError(t, s.SetCachedGeocode(ctx, "brisbane qld", updated, time.Hour))
		got, err = s.GetCachedGeocode(ctx, "brisbane qld")
		require.NoError(t, err)
		assert.JSONEq(t, string(updated), string(got))
	})

	t.Run("GeocodeCacheExpiry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		data := []byte(`{"found":false}`)
		require.NoError(t, s.SetCachedGeocode(ctx, "nowhere", data, -time.Hour))

		got, err := s.GetCachedGeocode(ctx, "nowhere")
		require.NoError(t, err)
		assert.Nil(t, got)

		n, err := s.DeleteExpiredGeocodes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLiteUpsertEmpty(t *testing.T) {
	s := newTestSQLite(t)
	n, err := s.UpsertDeals(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpenSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "open.db")
	s, err := Open(context.Background(), "sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
}
