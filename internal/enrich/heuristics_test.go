package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFinancials_Revenue(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"turnover with m suffix", "Popular cafe, turnover $1.2m, owner retiring", 1_200_000},
		{"annual revenue with commas", "Annual revenue: 450,000 with strong margins", 450_000},
		{"weekly taking annualized", "Currently taking $23k/week across two sites", 23_000 * 52},
		{"weekly prefix annualized", "weekly takings 800, easily improved", 800 * 52},
		{"sales keyword", "Sales of $2.4m in FY25", 2_400_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fin := ExtractFinancials(tt.text)
			require.NotNil(t, fin.Revenue)
			assert.InDelta(t, tt.want, *fin.Revenue, 0.01)
		})
	}
}

func TestExtractFinancials_EBITDA(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"ebitda with k suffix", "EBITDA $310k on consistent trade", 310_000},
		{"net profit per week", "Net profit of $4k p.w. to a working owner", 4_000 * 52},
		{"cashflow one word", "cashflow 95k, books available", 95_000},
		{"sde", "SDE: $180,000", 180_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fin := ExtractFinancials(tt.text)
			require.NotNil(t, fin.EBITDA)
			assert.InDelta(t, tt.want, *fin.EBITDA, 0.01)
		})
	}
}

func TestExtractFinancials_Ownership(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"freehold", "Freehold motel, 18 rooms", "freehold"},
		{"leasehold", "Leasehold only, secure 5+5 lease", "leasehold"},
		{"both is ambiguous", "Freehold or leasehold options available", ""},
		{"neither", "Management rights opportunity", ""},
		{"long lease is not leasehold", "Busy strip location with a long lease", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFinancials(tt.text).Ownership)
		})
	}
}

func TestExtractFinancials_NoSignals(t *testing.T) {
	fin := ExtractFinancials("Established business for sale, $450,000, great location")
	assert.Nil(t, fin.Revenue, "asking price must not be read as revenue")
	assert.Nil(t, fin.EBITDA)
	assert.Empty(t, fin.Ownership)
}

func TestExtractFinancials_ImplausiblySmall(t *testing.T) {
	fin := ExtractFinancials("Sales 2 locations, both performing well")
	assert.Nil(t, fin.Revenue)
}

func TestExtractFinancials_RevenueAndEBITDATogether(t *testing.T) {
	fin := ExtractFinancials("Turnover $1.8m, net profit $420k, freehold included")
	require.NotNil(t, fin.Revenue)
	require.NotNil(t, fin.EBITDA)
	assert.InDelta(t, 1_800_000, *fin.Revenue, 0.01)
	assert.InDelta(t, 420_000, *fin.EBITDA, 0.01)
	assert.Equal(t, "freehold", fin.Ownership)
}
