package scorer

import "github.com/seq-capital/dealflow-cli/internal/model"

// Rank returns the deals ordered by composite score, best first. The sort
// is stable: deals with equal scores keep their input order, so a run over
// identical input always produces identical output. Input is not mutated.
func Rank(deals []model.Deal) []model.Deal {
	out := make([]model.Deal, len(deals))
	copy(out, deals)

	// Insertion sort is fine for typical result sizes (<1000); the strict
	// comparison keeps it stable.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
