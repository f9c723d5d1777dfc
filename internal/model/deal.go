// Package model defines the canonical records exchanged between pipeline stages.
package model

// DateLayout is the wire format for dates on canonical records.
const DateLayout = "2006-01-02"

// Source describes one listing site to search, loaded from sites.yaml.
// Category, Region and Ownership are optional; the normalizer substitutes
// "Unknown" when they are empty.
type Source struct {
	Name      string   `yaml:"name" json:"name"`
	Category  string   `yaml:"category" json:"category,omitempty"`
	Region    string   `yaml:"region" json:"region,omitempty"`
	Ownership string   `yaml:"ownership" json:"ownership,omitempty"`
	GL        string   `yaml:"gl" json:"gl,omitempty"` // Google country code for search, e.g. "au"
	Queries   []string `yaml:"queries" json:"queries"`
	Disabled  bool     `yaml:"disabled" json:"disabled,omitempty"`
}

// RawHit is a single organic search result as returned by the search
// provider. Opaque beyond these fields; consumed once by the normalizer.
type RawHit struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position,omitempty"`
}

// Deal is the canonical record for one business-for-sale listing.
//
// URL is the identity key for deduplication. ID is a display label derived
// from the source name and a hash of the URL; collisions are tolerated and
// it must never be used for dedup.
//
// The financial and geographic fields are pointers so that "unknown" stays
// distinct from a real zero (EBITDA of 0 means break-even, nil means the
// listing didn't say).
type Deal struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Category      string   `json:"category"`
	Source        string   `json:"source"`
	URL           string   `json:"url"`
	AskingPrice   *float64 `json:"asking_price_aud"`
	Revenue       *float64 `json:"revenue_aud"`
	EBITDA        *float64 `json:"ebitda_aud"`
	Location      string   `json:"location"`
	Lat           *float64 `json:"lat"`
	Lon           *float64 `json:"lon"`
	Ownership     string   `json:"ownership"`
	DaysOnMarket  int      `json:"days_on_market"`
	DateListed    string   `json:"date_listed"` // YYYY-MM-DD, UTC date first observed
	Notes         string   `json:"notes"`
	Contact       *string  `json:"contact"`

	// Set by the scorer; zero-valued until then.
	Score    float64   `json:"score"`
	Features *Features `json:"features,omitempty"`
}

// Features holds the six normalized [0,1] sub-scores behind a composite
// score. Field order here is the canonical column order for exports.
type Features struct {
	Margin        float64 `json:"margin"`
	PriceToEBITDA float64 `json:"price_to_ebitda"`
	Recency       float64 `json:"recency"`
	Freehold      float64 `json:"freehold"`
	Category      float64 `json:"category"`
	Proximity     float64 `json:"proximity"`
}

// FeatureColumns is the export header order for feature sub-scores.
var FeatureColumns = []string{"margin", "price_to_ebitda", "recency", "freehold", "category", "proximity"}

// Values returns the sub-scores in FeatureColumns order.
func (f Features) Values() []float64 {
	return []float64{f.Margin, f.PriceToEBITDA, f.Recency, f.Freehold, f.Category, f.Proximity}
}
