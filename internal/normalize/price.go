package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// amountPattern matches the first decimal amount with an optional k/m
// multiplier suffix, applied after separators are stripped.
var amountPattern = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)(m|k)?`)

// currencyPattern locates an AUD-style money mention inside free text:
// an AU/AUD code with optional dollar sign, or a bare dollar sign,
// followed by the amount. The captured amount goes through ParsePrice.
var currencyPattern = regexp.MustCompile(`(?i)(?:AUD?\$?|\$)\s?([0-9,.]+[mk]?)`)

var suffixMultipliers = map[string]float64{
	"k": 1_000,
	"m": 1_000_000,
}

// ParsePrice extracts a numeric dollar amount from a price fragment.
// Thousands separators and spaces are stripped, then the first decimal
// number is read; a trailing "k" or "m" scales it. Returns nil when the
// text holds no number. Malformed text is never an error.
//
//	ParsePrice("$1.2m")   -> 1200000
//	ParsePrice("450k")    -> 450000
//	ParsePrice("985,000") -> 985000
func ParsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")

	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	if mul, ok := suffixMultipliers[strings.ToLower(m[2])]; ok {
		v *= mul
	}
	return &v
}

// PriceFromText scans free text (typically snippet + title) for a money
// mention with a currency marker and parses it. Returns nil when no
// marker is found; bare numbers without a marker are ignored so that
// years and staff counts don't read as prices.
func PriceFromText(text string) *float64 {
	m := currencyPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return ParsePrice(m[1])
}
