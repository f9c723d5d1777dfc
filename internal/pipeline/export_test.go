package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

func ptrFloat64(v float64) *float64 { return &v }

func exportDeals() []model.Deal {
	contact := "Jan Barry 0400 000 000"
	return []model.Deal{
		{
			ID:           "SeekBusiness-0042137",
			Title:        "Busy Cafe Northside",
			Category:     "Cafe/Restaurant",
			Source:       "SeekBusiness",
			URL:          "https://www.seekbusiness.com.au/listing/1001",
			AskingPrice:  ptrFloat64(450000),
			Revenue:      ptrFloat64(1200000),
			EBITDA:       ptrFloat64(300000),
			Location:     "Brisbane QLD",
			Lat:          ptrFloat64(-27.47),
			Lon:          ptrFloat64(153.02),
			Ownership:    "Leasehold",
			DaysOnMarket: 12,
			DateListed:   "2025-08-10",
			Notes:        "Well established cafe.",
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
		},
		{
			// Sparse row: nothing known beyond the listing itself.
			ID:         "CommercialRE-0000001",
			Title:      "Regional Newsagency",
			Category:   "Unknown",
			Source:     "CommercialRE",
			URL:        "https://www.commercialrealestate.com.au/listing/2001",
			Location:   "Unknown",
			Ownership:  "Unknown",
			DateListed: "2025-08-25",
			Score:      0.12,
		},
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, WriteArtifacts(dir, exportDeals()))

	assert.FileExists(t, filepath.Join(dir, "deals.json"))
	assert.FileExists(t, filepath.Join(dir, "latest.csv"))
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.json")
	require.NoError(t, WriteJSON(path, exportDeals()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n  {"), "expected a 2-space indented array")

	var got []model.Deal
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "SeekBusiness-0042137", got[0].ID)
	require.NotNil(t, got[0].AskingPrice)
	assert.InDelta(t, 450000, *got[0].AskingPrice, 0.01)
	assert.Nil(t, got[1].AskingPrice)
	assert.Nil(t, got[1].Features)
}

func TestWriteJSON_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.json")
	require.NoError(t, WriteJSON(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.csv")
	require.NoError(t, WriteCSV(path, exportDeals()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	wantHeader := []string{
		"id", "title", "category", "source", "url",
		"asking_price_aud", "revenue_aud", "ebitda_aud",
		"location", "lat", "lon", "ownership",
		"days_on_market", "date_listed", "contact", "score",
		"f_margin", "f_price_to_ebitda", "f_recency",
		"f_freehold", "f_category", "f_proximity",
	}
	assert.Equal(t, wantHeader, rows[0])

	full := rows[1]
	assert.Equal(t, "SeekBusiness-0042137", full[0])
	assert.Equal(t, "450000", full[5])
	assert.Equal(t, "-27.47", full[9])
	assert.Equal(t, "153.02", full[10])
	assert.Equal(t, "12", full[12])
	assert.Equal(t, "Jan Barry 0400 000 000", full[14])
	assert.Equal(t, "0.731", full[15])
	assert.Equal(t, "0.833", full[16])
	assert.Equal(t, "1.000", full[21])

	// Unknown numerics are empty cells, not zeroes.
	sparse := rows[2]
	assert.Equal(t, "", sparse[5])
	assert.Equal(t, "", sparse[9])
	assert.Equal(t, "", sparse[14])
	assert.Equal(t, "0", sparse[12])
	assert.Equal(t, "0.120", sparse[15])
	assert.Equal(t, "", sparse[16])
}

func TestWriteCSV_NoDeals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.csv")
	require.NoError(t, WriteCSV(path, nil))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
	assert.Equal(t, "id", rows[0][0])
}
