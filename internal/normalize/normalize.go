// Package normalize maps raw search hits into canonical Deal records and
// parses prices out of listing free text.
package normalize

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

// Unknown is the placeholder for descriptor fields a source doesn't declare.
const Unknown = "Unknown"

// idModulus keeps the numeric suffix of a deal ID at seven digits.
const idModulus = 10_000_000

// DealID derives the display identifier for a listing: the source name
// plus a fixed-width hash of the URL. Collisions are tolerated; URL stays
// the real identity key for dedup.
func DealID(source, url string) string {
	h := fnv.New32a()
	h.Write([]byte(url))
	return fmt.Sprintf("%s-%07d", source, h.Sum32()%idModulus)
}

// Hit maps one raw search hit plus its source descriptor to a Deal.
// Pure function of its inputs; now supplies the observation date.
//
// Financials beyond the asking price, coordinates and contact start nil;
// enrichment fills them later when it can.
func Hit(hit model.RawHit, src model.Source, now time.Time) model.Deal {
	title := strings.TrimSpace(hit.Title)
	return model.Deal{
		ID:          DealID(src.Name, hit.Link),
		Title:       title,
		Category:    orUnknown(src.Category),
		Source:      src.Name,
		URL:         hit.Link,
		AskingPrice: PriceFromText(hit.Snippet + " " + title),
		Location:    orUnknown(src.Region),
		Ownership:   orUnknown(src.Ownership),
		DateListed:  now.UTC().Format(model.DateLayout),
		Notes:       hit.Snippet,
	}
}

// Hits normalizes a batch of hits from one source.
func Hits(hits []model.RawHit, src model.Source, now time.Time) []model.Deal {
	deals := make([]model.Deal, 0, len(hits))
	for _, h := range hits {
		deals = append(deals, Hit(h, src, now))
	}
	return deals
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}
