package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/model"
	"github.com/seq-capital/dealflow-cli/internal/normalize"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// Lead holds the fields read back when matching existing leads.
type Lead struct {
	ID      string `json:"Id" salesforce:"Id"`
	Website string `json:"Website" salesforce:"Website"`
}

// PushLeads writes deals to Salesforce as Lead records, keyed on the
// listing URL in the Website field. New listings are inserted, already
// pushed ones get their fields refreshed. Records rejected by Salesforce
// are logged and excluded from the returned counts.
func PushLeads(ctx context.Context, c Client, deals []model.Deal) (created, updated int, err error) {
	if len(deals) == 0 {
		return 0, 0, nil
	}

	urls := make([]string, 0, len(deals))
	for _, d := range deals {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}

	existing, err := findLeadIDsByWebsite(ctx, c, urls)
	if err != nil {
		return 0, 0, err
	}

	var inserts []map[string]any
	var updates []CollectionRecord
	for _, d := range deals {
		if d.URL == "" {
			continue
		}
		if id, ok := existing[d.URL]; ok {
			updates = append(updates, CollectionRecord{ID: id, Fields: leadFields(d)})
		} else {
			inserts = append(inserts, leadFields(d))
		}
	}

	created, err = insertLeads(ctx, c, inserts)
	if err != nil {
		return created, 0, err
	}
	updated, err = updateLeads(ctx, c, updates)
	if err != nil {
		return created, updated, err
	}

	zap.L().Info("salesforce leads pushed",
		zap.Int("created", created),
		zap.Int("updated", updated))
	return created, updated, nil
}

// findLeadIDsByWebsite maps listing URL to Lead ID for leads already in the
// org. URLs are chunked to keep each SOQL statement bounded.
func findLeadIDsByWebsite(ctx context.Context, c Client, urls []string) (map[string]string, error) {
	ids := make(map[string]string, len(urls))

	for start := 0; start < len(urls); start += maxBatchSize {
		end := min(start+maxBatchSize, len(urls))

		quoted := make([]string, 0, end-start)
		for _, u := range urls[start:end] {
			quoted = append(quoted, "'"+escapeSoql(u)+"'")
		}
		soql := fmt.Sprintf("SELECT Id, Website FROM Lead WHERE Website IN (%s)", strings.Join(quoted, ", "))

		var leads []Lead
		if err := c.Query(ctx, soql, &leads); err != nil {
			return nil, eris.Wrap(err, "sf: find leads by website")
		}
		for _, l := range leads {
			ids[l.Website] = l.ID
		}
	}

	return ids, nil
}

// insertLeads splits records into batches of 200 (SF Collections API limit)
// and sends them via InsertCollection.
func insertLeads(ctx context.Context, c Client, records []map[string]any) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var ok int
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		results, err := c.InsertCollection(ctx, "Lead", records[start:end])
		if err != nil {
			return ok, eris.Wrap(err, fmt.Sprintf("sf: insert leads batch %d-%d", start, end))
		}
		ok += countSuccesses(results)
	}
	return ok, nil
}

// updateLeads splits records into batches of 200 and sends them via
// UpdateCollection.
func updateLeads(ctx context.Context, c Client, records []CollectionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var ok int
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		results, err := c.UpdateCollection(ctx, "Lead", records[start:end])
		if err != nil {
			return ok, eris.Wrap(err, fmt.Sprintf("sf: update leads batch %d-%d", start, end))
		}
		ok += countSuccesses(results)
	}
	return ok, nil
}

func countSuccesses(results []CollectionResult) int {
	var n int
	for _, r := range results {
		if r.Success {
			n++
			continue
		}
		zap.L().Warn("salesforce record rejected",
			zap.String("id", r.ID),
			zap.Strings("errors", r.Errors))
	}
	return n
}

// leadFields maps a deal onto standard Lead fields. Lead requires LastName
// and Company, so both always get a value even when the listing is anonymous.
func leadFields(d model.Deal) map[string]any {
	fields := map[string]any{
		"Company":     d.Title,
		"LastName":    leadLastName(d),
		"Website":     d.URL,
		"LeadSource":  d.Source,
		"Rating":      leadRating(d.Score),
		"Description": leadDescription(d),
	}
	if d.Location != "" && d.Location != normalize.Unknown {
		fields["City"] = d.Location
	}
	if d.Revenue != nil {
		fields["AnnualRevenue"] = *d.Revenue
	}
	return fields
}

func leadLastName(d model.Deal) string {
	if d.Contact != nil && *d.Contact != "" {
		return *d.Contact
	}
	return normalize.Unknown
}

// leadRating buckets the composite score into the standard Rating picklist.
func leadRating(score float64) string {
	switch {
	case score >= 0.66:
		return "Hot"
	case score >= 0.33:
		return "Warm"
	default:
		return "Cold"
	}
}

func leadDescription(d model.Deal) string {
	parts := []string{fmt.Sprintf("Category: %s", d.Category)}
	if d.AskingPrice != nil {
		parts = append(parts, fmt.Sprintf("Asking price: $%.0f", *d.AskingPrice))
	}
	if d.EBITDA != nil {
		parts = append(parts, fmt.Sprintf("EBITDA: $%.0f", *d.EBITDA))
	}
	if d.Ownership != "" && d.Ownership != normalize.Unknown {
		parts = append(parts, fmt.Sprintf("Ownership: %s", d.Ownership))
	}
	if d.DateListed != "" {
		parts = append(parts, fmt.Sprintf("Listed: %s (%d days on market)", d.DateListed, d.DaysOnMarket))
	}
	parts = append(parts, fmt.Sprintf("Score: %.3f", d.Score))
	return strings.Join(parts, "\n")
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
