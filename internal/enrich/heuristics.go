package enrich

import (
	"regexp"
	"strings"

	"github.com/seq-capital/dealflow-cli/internal/normalize"
)

// Listing copy quotes financials in a handful of recurring shapes:
// "turnover $1.2m", "taking $23k/week", "net profit: 180,000". The
// patterns anchor on a keyword so a bare asking price is never mistaken
// for revenue. Amount tokens are handed to normalize.ParsePrice, which
// already understands the k/m suffixes.
var (
	revenueRe = regexp.MustCompile(`(?i)\b(annual|weekly)?\s*(?:revenue|turnover|takings?|sales)\b[^0-9$]{0,24}(?:AUD?\$?|\$)?\s?([0-9][0-9,]*(?:\.[0-9]+)?\s?[mk]?)\s*(/\s*w(?:ee)?k|per\s+week|a\s+week|p\.?w\.?|weekly)?`)
	ebitdaRe  = regexp.MustCompile(`(?i)\b(?:ebitda|net\s+profit|net\s+earnings|earnings|sde|cash\s?flow)\b[^0-9$]{0,24}(?:AUD?\$?|\$)?\s?([0-9][0-9,]*(?:\.[0-9]+)?\s?[mk]?)\s*(/\s*w(?:ee)?k|per\s+week|a\s+week|p\.?w\.?|weekly)?`)

	freeholdRe  = regexp.MustCompile(`(?i)\bfreehold\b`)
	leaseholdRe = regexp.MustCompile(`(?i)\b(?:leasehold|lease\s+only)\b`)
)

// minPlausibleAnnual rejects accidental matches like "sales 2 locations":
// no real annual figure is under a thousand dollars.
const minPlausibleAnnual = 1000

const weeksPerYear = 52

// Financials are figures recovered from listing text. Nil means the text
// gave no usable signal; Ownership is empty rather than "Unknown" in that
// case so callers can tell silence from an explicit answer.
type Financials struct {
	Revenue   *float64
	EBITDA    *float64
	Ownership string
}

// ExtractFinancials scans free text for revenue, EBITDA and tenure
// signals. Weekly figures are annualized.
func ExtractFinancials(text string) Financials {
	var fin Financials

	if m := revenueRe.FindStringSubmatch(text); m != nil {
		fin.Revenue = annualized(m[2], strings.EqualFold(m[1], "weekly") || m[3] != "")
	}
	if m := ebitdaRe.FindStringSubmatch(text); m != nil {
		fin.EBITDA = annualized(m[1], m[2] != "")
	}

	free := freeholdRe.MatchString(text)
	lease := leaseholdRe.MatchString(text)
	switch {
	case free && !lease:
		fin.Ownership = "freehold"
	case lease && !free:
		fin.Ownership = "leasehold"
	}

	return fin
}

// annualized parses an amount token, multiplies weekly figures out to a
// year and drops anything implausibly small.
func annualized(token string, weekly bool) *float64 {
	v := normalize.ParsePrice(token)
	if v == nil {
		return nil
	}
	amount := *v
	if weekly {
		amount *= weeksPerYear
	}
	if amount < minPlausibleAnnual {
		return nil
	}
	return &amount
}
