package scorer

import (
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/geo"
	"github.com/seq-capital/dealflow-cli/internal/model"
)

// Score computes the six normalized features and the weighted composite
// for every deal, against the current UTC date. Input order is preserved;
// each output deal is a copy of the input augmented with Score and
// Features. Deals are scored independently; a record with missing
// financials or coordinates still scores, with the affected features
// falling back to their documented defaults instead of erroring.
func Score(deals []model.Deal, cfg *Config) []model.Deal {
	return ScoreAt(deals, cfg, time.Now().UTC())
}

// ScoreAt scores against an explicit observation time. Scoring the same
// deals with the same config and time is deterministic.
func ScoreAt(deals []model.Deal, cfg *Config, asOf time.Time) []model.Deal {
	targets := make(map[string]struct{}, len(cfg.TargetCategories))
	for _, c := range cfg.TargetCategories {
		targets[c] = struct{}{}
	}
	today := dateOnly(asOf.UTC())

	out := make([]model.Deal, len(deals))
	for i, d := range deals {
		out[i] = scoreDeal(d, cfg, targets, today)
	}

	zap.L().Debug("scorer: batch scored",
		zap.Int("deals", len(out)),
		zap.Float64("weight_sum", cfg.WeightSum()),
	)
	return out
}

func scoreDeal(d model.Deal, cfg *Config, targets map[string]struct{}, today time.Time) model.Deal {
	cv := cfg.Curves
	f := model.Features{
		Margin:        scoreMargin(d.Revenue, d.EBITDA, cv),
		PriceToEBITDA: scorePriceToEBITDA(d.AskingPrice, d.EBITDA, cv),
		Recency:       scoreRecency(d.DateListed, today, cv),
		Freehold:      scoreFreehold(d.Ownership, cv),
		Category:      scoreCategory(d.Category, targets, cv),
		Proximity:     scoreProximity(d.Lat, d.Lon, cfg),
	}

	composite := cfg.Weights[WeightEBITDAMargin]*f.Margin +
		cfg.Weights[WeightPriceToEBITDA]*f.PriceToEBITDA +
		cfg.Weights[WeightRecency]*f.Recency +
		cfg.Weights[WeightOwnershipFreehold]*f.Freehold +
		cfg.Weights[WeightCategoryMatch]*f.Category +
		cfg.Weights[WeightProximitySEQLD]*f.Proximity

	// Round for output; freehold stays exact (it is already 1.0 or the
	// configured partial credit).
	f.Margin = round3(f.Margin)
	f.PriceToEBITDA = round3(f.PriceToEBITDA)
	f.Recency = round3(f.Recency)
	f.Category = round3(f.Category)
	f.Proximity = round3(f.Proximity)

	scored := d
	scored.Score = round3(composite)
	scored.Features = &f
	return scored
}

// scoreMargin rewards EBITDA margin, saturating at the margin cap. A deal
// with no revenue, zero revenue, or no EBITDA scores 0 here.
func scoreMargin(revenue, ebitda *float64, cv Curves) float64 {
	rev := orZero(revenue)
	if rev <= 0 {
		return 0
	}
	margin := orZero(ebitda) / rev
	return clamp01(margin / cv.MarginCap)
}

// scorePriceToEBITDA rewards low purchase multiples. With EBITDA unknown
// or non-positive the sentinel multiple applies, which clamps to zero
// credit: an unpriceable deal is treated as infinitely expensive.
func scorePriceToEBITDA(price, ebitda *float64, cv Curves) float64 {
	pte := cv.PTESentinel
	if e := orZero(ebitda); e > 0 {
		pte = orZero(price) / e
	}
	return 1 - clamp01(pte/cv.PTECap)
}

// scoreRecency decays linearly from 1.0 on the listing day to 0 at the
// recency window. An unparseable listing date reads as a full window old.
func scoreRecency(dateListed string, today time.Time, cv Curves) float64 {
	days := cv.RecencyWindowDays
	if listed, err := time.Parse(model.DateLayout, dateListed); err == nil {
		days = today.Sub(listed).Hours() / 24
	}
	return clamp01(1 - days/cv.RecencyWindowDays)
}

// scoreFreehold gives full credit to freehold ownership and a fixed
// partial credit to everything else, unknown included.
func scoreFreehold(ownership string, cv Curves) float64 {
	if strings.EqualFold(ownership, FreeholdOwnership) {
		return 1.0
	}
	return cv.LeaseholdCredit
}

// scoreCategory gives full credit inside the target set and neutral
// partial credit outside it. Matching is exact: categories come from the
// controlled vocabulary in sites.yaml, not free text.
func scoreCategory(category string, targets map[string]struct{}, cv Curves) float64 {
	if _, ok := targets[category]; ok {
		return 1.0
	}
	return cv.NeutralCategory
}

// scoreProximity decays linearly with great-circle distance from HQ,
// reaching zero at the configured max distance. Deals without coordinates
// score the neutral default rather than zero; unknown is not far.
func scoreProximity(lat, lon *float64, cfg *Config) float64 {
	if lat == nil || lon == nil {
		return cfg.Curves.NeutralProximity
	}
	dist := geo.HaversineKM(cfg.HQLat, cfg.HQLon, *lat, *lon)
	return clamp01(1 - dist/cfg.MaxDistanceKM)
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
