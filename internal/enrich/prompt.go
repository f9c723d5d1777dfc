package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/seq-capital/dealflow-cli/internal/model"
	"github.com/seq-capital/dealflow-cli/pkg/anthropic"
)

// systemPrompt is shared by every extraction request in a run so it can
// sit behind a prompt cache breakpoint.
const systemPrompt = `You extract financial figures from Australian business-for-sale listings.

Given a listing, report its annual revenue (also called turnover or takings), annual EBITDA (also called net profit, earnings or SDE), and tenure (freehold or leasehold). Figures are AUD. Annualize weekly or monthly figures. Never infer a figure that is not stated or directly computable from the listing text; use null instead. Do not report the asking price as revenue.

Respond with only a JSON object in this exact shape:
{"revenue": <number or null>, "ebitda": <number or null>, "ownership": <"freehold", "leasehold" or null>}`

// buildUserMessage renders one listing for extraction.
func buildUserMessage(d model.Deal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", d.Title)
	fmt.Fprintf(&sb, "Category: %s\n", d.Category)
	fmt.Fprintf(&sb, "Location: %s\n", d.Location)
	if d.AskingPrice != nil {
		fmt.Fprintf(&sb, "Asking price: $%.0f\n", *d.AskingPrice)
	}
	fmt.Fprintf(&sb, "Listing text: %s\n", d.Notes)
	return sb.String()
}

// parseFinancials pulls the JSON object out of a model response. Replies
// sometimes arrive wrapped in markdown fences or with a sentence of
// preamble, so the object is located before unmarshalling.
func parseFinancials(resp *anthropic.MessageResponse) (Financials, error) {
	if resp == nil || len(resp.Content) == 0 {
		return Financials{}, eris.New("enrich: empty response")
	}

	cleaned := cleanJSON(extractText(resp))

	var raw struct {
		Revenue   *float64 `json:"revenue"`
		EBITDA    *float64 `json:"ebitda"`
		Ownership *string  `json:"ownership"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return Financials{}, eris.Wrap(err, "enrich: parse extraction JSON")
	}

	fin := Financials{Revenue: raw.Revenue, EBITDA: raw.EBITDA}
	if raw.Ownership != nil {
		switch strings.ToLower(strings.TrimSpace(*raw.Ownership)) {
		case "freehold":
			fin.Ownership = "freehold"
		case "leasehold":
			fin.Ownership = "leasehold"
		}
	}
	return fin, nil
}

// extractText concatenates all text content blocks.
func extractText(resp *anthropic.MessageResponse) string {
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
