package normalize

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

var testNow = time.Date(2025, 8, 20, 3, 45, 0, 0, time.UTC)

func TestHit(t *testing.T) {
	src := model.Source{
		Name:      "SeekBusiness",
		Category:  "Cafe/Restaurant",
		Region:    "QLD",
		Ownership: "Leasehold",
	}
	hit := model.RawHit{
		Title:   "  Busy cafe for sale - Sunshine Coast  ",
		Link:    "https://www.seekbusiness.com.au/listing/123456",
		Snippet: "Prime location cafe, AU$450k walk-in walk-out.",
	}

	d := Hit(hit, src, testNow)

	assert.Equal(t, "Busy cafe for sale - Sunshine Coast", d.Title)
	assert.Equal(t, "Cafe/Restaurant", d.Category)
	assert.Equal(t, "SeekBusiness", d.Source)
	assert.Equal(t, hit.Link, d.URL)
	assert.Equal(t, "QLD", d.Location)
	assert.Equal(t, "Leasehold", d.Ownership)
	assert.Equal(t, "2025-08-20", d.DateListed)
	assert.Equal(t, 0, d.DaysOnMarket)
	assert.Equal(t, hit.Snippet, d.Notes)

	require.NotNil(t, d.AskingPrice)
	assert.InDelta(t, 450_000, *d.AskingPrice, 0.001)

	// Enrichment-only fields start unknown, not zero.
	assert.Nil(t, d.Revenue)
	assert.Nil(t, d.EBITDA)
	assert.Nil(t, d.Lat)
	assert.Nil(t, d.Lon)
	assert.Nil(t, d.Contact)
	assert.Nil(t, d.Features)
	assert.Zero(t, d.Score)
}

func TestHitDefaultsUnknown(t *testing.T) {
	src := model.Source{Name: "BizListings"}
	hit := model.RawHit{Title: "Engineering firm", Link: "https://example.com/1"}

	d := Hit(hit, src, testNow)

	assert.Equal(t, Unknown, d.Category)
	assert.Equal(t, Unknown, d.Location)
	assert.Equal(t, Unknown, d.Ownership)
	assert.Nil(t, d.AskingPrice)
}

func TestHitPriceFromTitle(t *testing.T) {
	// The currency scan covers snippet and title together.
	src := model.Source{Name: "CommercialRE"}
	hit := model.RawHit{
		Title:   "Freehold motel AUD 2.4m",
		Link:    "https://example.com/motel",
		Snippet: "Twenty rooms, owner retiring.",
	}

	d := Hit(hit, src, testNow)

	require.NotNil(t, d.AskingPrice)
	assert.InDelta(t, 2_400_000, *d.AskingPrice, 0.001)
}

func TestDealID(t *testing.T) {
	idPattern := regexp.MustCompile(`^SeekBusiness-\d{7}$`)

	a := DealID("SeekBusiness", "https://example.com/listing/1")
	b := DealID("SeekBusiness", "https://example.com/listing/1")
	c := DealID("SeekBusiness", "https://example.com/listing/2")

	assert.Regexp(t, idPattern, a)
	assert.Equal(t, a, b, "same source and url must derive the same id")
	assert.NotEqual(t, a, c)
}

func TestHits(t *testing.T) {
	src := model.Source{Name: "AnyBusiness", Region: "NSW"}
	hits := []model.RawHit{
		{Title: "Bakery", Link: "https://example.com/a"},
		{Title: "Laundromat", Link: "https://example.com/b"},
	}

	deals := Hits(hits, src, testNow)

	require.Len(t, deals, 2)
	assert.Equal(t, "Bakery", deals[0].Title)
	assert.Equal(t, "NSW", deals[1].Location)
}
