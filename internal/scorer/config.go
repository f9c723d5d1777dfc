// Package scorer computes weighted multi-criteria suitability scores for
// normalized deals and ranks them for review.
package scorer

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Weight keys, in canonical feature order. Every key must be present in a
// scoring config; a missing weight aborts the run rather than silently
// zeroing a ranking dimension.
const (
	WeightEBITDAMargin      = "ebitda_margin"
	WeightPriceToEBITDA     = "price_to_ebitda"
	WeightRecency           = "recency"
	WeightOwnershipFreehold = "ownership_freehold"
	WeightCategoryMatch     = "category_match"
	WeightProximitySEQLD    = "proximity_se_qld"
)

// WeightKeys lists the required weight names in feature order.
var WeightKeys = []string{
	WeightEBITDAMargin,
	WeightPriceToEBITDA,
	WeightRecency,
	WeightOwnershipFreehold,
	WeightCategoryMatch,
	WeightProximitySEQLD,
}

// FreeholdOwnership is the ownership value that earns full freehold credit.
const FreeholdOwnership = "freehold"

// Default curve constants, applied when a scoring config omits the
// curves block. Unlike weights they have safe domain defaults, so absence
// is not an error.
const (
	DefaultMarginCap         = 0.30 // EBITDA margin earning full credit
	DefaultPTECap            = 5.0  // price/EBITDA multiple scoring zero
	DefaultPTESentinel       = 99.0 // multiple substituted when EBITDA is unknown or <= 0
	DefaultRecencyWindowDays = 30.0 // listing age at which recency hits zero
	DefaultLeaseholdCredit   = 0.3  // partial credit for any non-freehold ownership
	DefaultNeutralCategory   = 0.5  // credit for categories outside the target set
	DefaultNeutralProximity  = 0.5  // credit when a deal has no coordinates
)

// Curves holds the feature normalization constants.
type Curves struct {
	MarginCap         float64 `json:"margin_cap"`
	PTECap            float64 `json:"pte_cap"`
	PTESentinel       float64 `json:"pte_sentinel"`
	RecencyWindowDays float64 `json:"recency_window_days"`
	LeaseholdCredit   float64 `json:"leasehold_credit"`
	NeutralCategory   float64 `json:"neutral_category"`
	NeutralProximity  float64 `json:"neutral_proximity"`
}

// DefaultCurves returns the standard normalization constants.
func DefaultCurves() Curves {
	return Curves{
		MarginCap:         DefaultMarginCap,
		PTECap:            DefaultPTECap,
		PTESentinel:       DefaultPTESentinel,
		RecencyWindowDays: DefaultRecencyWindowDays,
		LeaseholdCredit:   DefaultLeaseholdCredit,
		NeutralCategory:   DefaultNeutralCategory,
		NeutralProximity:  DefaultNeutralProximity,
	}
}

// Config parameterizes one scoring pass. Built by Load or by copying and
// overriding an existing config; always Validate before scoring.
type Config struct {
	Weights          map[string]float64 `json:"weights"`
	TargetCategories []string           `json:"target_categories"`
	HQLat            float64            `json:"hq_lat"`
	HQLon            float64            `json:"hq_lon"`
	MaxDistanceKM    float64            `json:"max_distance_km_for_full_points"`
	Curves           Curves             `json:"curves"`
}

// fileConfig is the wire form of a scoring config. Pointer fields keep a
// missing key distinguishable from an explicit zero.
type fileConfig struct {
	Weights          map[string]float64 `json:"weights"`
	TargetCategories []string           `json:"target_categories"`
	HQLat            *float64           `json:"hq_lat"`
	HQLon            *float64           `json:"hq_lon"`
	MaxDistanceKM    *float64           `json:"max_distance_km_for_full_points"`
	Curves           *Curves            `json:"curves"`
}

// Load reads and validates a scoring config from a JSON file. Any missing
// or invalid field is fatal: a run with a silently-defaulted weight would
// rank deals on different priorities than the operator asked for.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: read scoring config")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "scorer: parse scoring config")
	}

	var errs []string
	if fc.HQLat == nil {
		errs = append(errs, "hq_lat missing")
	}
	if fc.HQLon == nil {
		errs = append(errs, "hq_lon missing")
	}
	if fc.MaxDistanceKM == nil {
		errs = append(errs, "max_distance_km_for_full_points missing")
	}
	if fc.Weights == nil {
		errs = append(errs, "weights missing")
	}
	for _, key := range WeightKeys {
		if fc.Weights != nil {
			if _, ok := fc.Weights[key]; !ok {
				errs = append(errs, fmt.Sprintf("weights.%s missing", key))
			}
		}
	}
	for key := range fc.Weights {
		if !isWeightKey(key) {
			errs = append(errs, fmt.Sprintf("weights.%s unknown", key))
		}
	}
	if len(errs) > 0 {
		return nil, eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}

	cfg := &Config{
		Weights:          fc.Weights,
		TargetCategories: fc.TargetCategories,
		HQLat:            *fc.HQLat,
		HQLon:            *fc.HQLon,
		MaxDistanceKM:    *fc.MaxDistanceKM,
		Curves:           DefaultCurves(),
	}
	if fc.Curves != nil {
		cfg.Curves = *fc.Curves
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that a Config is internally consistent. Called by Load
// and again after flag overrides are applied.
func (c *Config) Validate() error {
	var errs []string

	for _, key := range WeightKeys {
		w, ok := c.Weights[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("weights.%s missing", key))
			continue
		}
		if w < 0 {
			errs = append(errs, fmt.Sprintf("weights.%s must be >= 0", key))
		}
	}
	for key := range c.Weights {
		if !isWeightKey(key) {
			errs = append(errs, fmt.Sprintf("weights.%s unknown", key))
		}
	}

	if c.HQLat < -90 || c.HQLat > 90 {
		errs = append(errs, "hq_lat must be between -90 and 90")
	}
	if c.HQLon < -180 || c.HQLon > 180 {
		errs = append(errs, "hq_lon must be between -180 and 180")
	}
	if c.MaxDistanceKM <= 0 {
		errs = append(errs, "max_distance_km_for_full_points must be > 0")
	}

	cv := c.Curves
	if cv.MarginCap <= 0 {
		errs = append(errs, "curves.margin_cap must be > 0")
	}
	if cv.PTECap <= 0 {
		errs = append(errs, "curves.pte_cap must be > 0")
	}
	if cv.PTESentinel < cv.PTECap {
		errs = append(errs, "curves.pte_sentinel must be >= curves.pte_cap")
	}
	if cv.RecencyWindowDays <= 0 {
		errs = append(errs, "curves.recency_window_days must be > 0")
	}
	if cv.LeaseholdCredit < 0 || cv.LeaseholdCredit > 1 {
		errs = append(errs, "curves.leasehold_credit must be between 0 and 1")
	}
	if cv.NeutralCategory < 0 || cv.NeutralCategory > 1 {
		errs = append(errs, "curves.neutral_category must be between 0 and 1")
	}
	if cv.NeutralProximity < 0 || cv.NeutralProximity > 1 {
		errs = append(errs, "curves.neutral_proximity must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Clone returns a deep copy safe to override without touching the base.
func (c *Config) Clone() *Config {
	out := *c
	out.Weights = make(map[string]float64, len(c.Weights))
	for k, v := range c.Weights {
		out.Weights[k] = v
	}
	out.TargetCategories = append([]string(nil), c.TargetCategories...)
	return &out
}

// WeightSum returns the sum of all configured weights. Weights are never
// renormalized, so the composite score scales with this sum.
func (c *Config) WeightSum() float64 {
	var sum float64
	for _, key := range WeightKeys {
		sum += c.Weights[key]
	}
	return sum
}

// Hash returns a short SHA-256 digest of the config, recorded per run so a
// ranking can be traced back to the exact weights that produced it.
func (c *Config) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}

func isWeightKey(key string) bool {
	for _, k := range WeightKeys {
		if k == key {
			return true
		}
	}
	return false
}
