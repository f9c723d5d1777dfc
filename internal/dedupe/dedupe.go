// Package dedupe collapses normalized deals to one record per listing URL.
package dedupe

import "github.com/seq-capital/dealflow-cli/internal/model"

// ByURL keeps exactly one deal per URL, the last one encountered, so later
// observations of a listing overwrite earlier ones. Output preserves the
// position of each URL's first appearance, which keeps downstream ranking
// deterministic when scores tie.
//
// An empty URL is treated as its own valid degenerate key; all empty-URL
// deals collapse into one.
func ByURL(deals []model.Deal) []model.Deal {
	out := make([]model.Deal, 0, len(deals))
	at := make(map[string]int, len(deals))
	for _, d := range deals {
		if i, ok := at[d.URL]; ok {
			out[i] = d
			continue
		}
		at[d.URL] = len(out)
		out = append(out, d)
	}
	return out
}
