package scorer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
  "weights": {
    "ebitda_margin": 0.25,
    "price_to_ebitda": 0.25,
    "recency": 0.15,
    "ownership_freehold": 0.10,
    "category_match": 0.10,
    "proximity_se_qld": 0.15
  },
  "target_categories": ["Cafe/Restaurant", "Services"],
  "hq_lat": -27.5,
  "hq_lon": 153.0,
  "max_distance_km_for_full_points": 200
}`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoring_config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigJSON))
	require.NoError(t, err)

	assert.InDelta(t, 0.25, cfg.Weights[WeightEBITDAMargin], 0.0001)
	assert.InDelta(t, 0.15, cfg.Weights[WeightProximitySEQLD], 0.0001)
	assert.Equal(t, []string{"Cafe/Restaurant", "Services"}, cfg.TargetCategories)
	assert.InDelta(t, -27.5, cfg.HQLat, 0.0001)
	assert.InDelta(t, 153.0, cfg.HQLon, 0.0001)
	assert.InDelta(t, 200, cfg.MaxDistanceKM, 0.0001)

	// Curves default when the block is omitted.
	assert.Equal(t, DefaultCurves(), cfg.Curves)
	assert.InDelta(t, 1.0, cfg.WeightSum(), 0.0001)
}

func TestLoadCurvesOverride(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
  "weights": {
    "ebitda_margin": 1, "price_to_ebitda": 1, "recency": 1,
    "ownership_freehold": 1, "category_match": 1, "proximity_se_qld": 1
  },
  "target_categories": [],
  "hq_lat": -27.5,
  "hq_lon": 153.0,
  "max_distance_km_for_full_points": 150,
  "curves": {
    "margin_cap": 0.25,
    "pte_cap": 4,
    "pte_sentinel": 50,
    "recency_window_days": 14,
    "leasehold_credit": 0.2,
    "neutral_category": 0.4,
    "neutral_proximity": 0.6
  }
}`))
	require.NoError(t, err)

	assert.InDelta(t, 0.25, cfg.Curves.MarginCap, 0.0001)
	assert.InDelta(t, 14, cfg.Curves.RecencyWindowDays, 0.0001)
	assert.InDelta(t, 0.6, cfg.Curves.NeutralProximity, 0.0001)
}

func TestLoadMissingWeightIsFatal(t *testing.T) {
	_, err := Load(writeConfig(t, `{
  "weights": {
    "ebitda_margin": 0.25, "price_to_ebitda": 0.25, "recency": 0.15,
    "ownership_freehold": 0.10, "category_match": 0.10
  },
  "target_categories": [],
  "hq_lat": -27.5,
  "hq_lon": 153.0,
  "max_distance_km_for_full_points": 200
}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights.proximity_se_qld missing")
}

func TestLoadMissingThresholdIsFatal(t *testing.T) {
	_, err := Load(writeConfig(t, `{
  "weights": {
    "ebitda_margin": 0.25, "price_to_ebitda": 0.25, "recency": 0.15,
    "ownership_freehold": 0.10, "category_match": 0.10, "proximity_se_qld": 0.15
  },
  "target_categories": []
}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hq_lat missing")
	assert.Contains(t, err.Error(), "hq_lon missing")
	assert.Contains(t, err.Error(), "max_distance_km_for_full_points missing")
}

func TestLoadUnknownWeightIsFatal(t *testing.T) {
	_, err := Load(writeConfig(t, `{
  "weights": {
    "ebitda_margin": 0.25, "price_to_ebitda": 0.25, "recency": 0.15,
    "ownership_freehold": 0.10, "category_match": 0.10, "proximity_se_qld": 0.15,
    "mystery_weight": 0.5
  },
  "target_categories": [],
  "hq_lat": -27.5,
  "hq_lon": 153.0,
  "max_distance_km_for_full_points": 200
}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights.mystery_weight unknown")
}

func TestLoadRejectsUnknownTopLevelField(t *testing.T) {
	_, err := Load(writeConfig(t, `{"weights": {}, "surprise": true}`))
	require.Error(t, err)
}

func TestLoadRejectsNonNumericWeight(t *testing.T) {
	_, err := Load(writeConfig(t, `{"weights": {"ebitda_margin": "lots"}}`))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestValidateNegativeWeight(t *testing.T) {
	cfg := testConfig()
	cfg.Weights[WeightRecency] = -0.1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights.recency must be >= 0")
}

func TestValidateBadDistance(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDistanceKM = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_distance_km_for_full_points must be > 0")
}

func TestValidateBadCoordinates(t *testing.T) {
	cfg := testConfig()
	cfg.HQLat = -91
	cfg.HQLon = 181

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hq_lat")
	assert.Contains(t, err.Error(), "hq_lon")
}

func TestValidateSentinelBelowCap(t *testing.T) {
	cfg := testConfig()
	cfg.Curves.PTESentinel = 2
	cfg.Curves.PTECap = 5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pte_sentinel")
}

func TestHash(t *testing.T) {
	a := testConfig()
	b := testConfig()

	assert.NotEmpty(t, a.Hash())
	assert.Equal(t, a.Hash(), b.Hash(), "identical configs must hash alike")

	b.Weights[WeightRecency] = 0.99
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestClone(t *testing.T) {
	base := testConfig()
	clone := base.Clone()

	clone.Weights[WeightRecency] = 0.9
	clone.TargetCategories[0] = "changed"
	clone.MaxDistanceKM = 10

	assert.InDelta(t, 0.15, base.Weights[WeightRecency], 0.0001)
	assert.Equal(t, "Cafe/Restaurant", base.TargetCategories[0])
	assert.InDelta(t, 200, base.MaxDistanceKM, 0.0001)
}
