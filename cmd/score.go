package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/model"
	"github.com/seq-capital/dealflow-cli/internal/pipeline"
	"github.com/seq-capital/dealflow-cli/internal/scorer"
	"github.com/seq-capital/dealflow-cli/internal/store"
)

var (
	scoreWeights    []string
	scoreHQ         string
	scoreMaxKM      float64
	scoreCategories []string
	scoreFormat     string
	scoreLimit      int
	scoreNoExport   bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Re-score stored deals without searching",
	Long: `Re-runs scoring and ranking over every deal already in the store,
optionally with weight, HQ, distance, or category overrides, then
rewrites the export artifacts.

Examples:
  # Re-score with the configured weights
  dealflow score

  # What-if: bias heavily toward cheap EBITDA multiples
  dealflow score --weight price_to_ebitda=0.4 --weight recency=0.05

  # What-if: rank for a Sydney buyer instead
  dealflow score --hq=-33.87,151.21 --max-km 100`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		base, err := scorer.Load(cfg.Scoring.ConfigPath)
		if err != nil {
			return eris.Wrap(err, "load scoring config")
		}
		scoring, err := applyWeightOverrides(base, scoreWeights)
		if err != nil {
			return err
		}
		if err := applyGeoOverrides(cmd, scoring); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		deals, err := st.ListDeals(ctx, store.DealFilter{})
		if err != nil {
			return eris.Wrap(err, "list deals")
		}
		if len(deals) == 0 {
			fmt.Fprintln(os.Stderr, "No deals in the store. Run `dealflow run` or `dealflow import` first.")
			return nil
		}

		deals = scorer.Rank(scorer.Score(deals, scoring))

		written, err := st.UpsertDeals(ctx, deals)
		if err != nil {
			return eris.Wrap(err, "persist scores")
		}
		zap.L().Info("deals re-scored",
			zap.Int64("written", written),
			zap.String("config_hash", scoring.Hash()),
		)

		if !scoreNoExport {
			if err := pipeline.WriteArtifacts(cfg.Export.Dir, deals); err != nil {
				return eris.Wrap(err, "write artifacts")
			}
		}

		limit := scoreLimit
		if limit <= 0 || limit > len(deals) {
			limit = len(deals)
		}
		switch scoreFormat {
		case "table":
			formatDealsTable(os.Stdout, deals[:limit])
		case "csv":
			if err := pipeline.WriteCSVTo(os.Stdout, deals[:limit]); err != nil {
				return eris.Wrap(err, "write csv")
			}
		default:
			return eris.Errorf("unknown --format %q (want table or csv)", scoreFormat)
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringArrayVar(&scoreWeights, "weight", nil, "override a weight, e.g. --weight recency=0.2 (repeatable)")
	scoreCmd.Flags().StringVar(&scoreHQ, "hq", "", "override the HQ coordinates, e.g. --hq=-27.5,153.0")
	scoreCmd.Flags().Float64Var(&scoreMaxKM, "max-km", 0, "override the full-points proximity radius in km")
	scoreCmd.Flags().StringArrayVar(&scoreCategories, "target-category", nil, "replace the target categories (repeatable)")
	scoreCmd.Flags().StringVar(&scoreFormat, "format", "table", "stdout format: table or csv")
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 20, "max deals to display")
	scoreCmd.Flags().BoolVar(&scoreNoExport, "no-export", false, "skip rewriting deals.json and latest.csv")
	rootCmd.AddCommand(scoreCmd)
}

// applyGeoOverrides mutates scoring in place with the HQ, radius, and
// category flags, when set, and re-validates. The weight pass has already
// cloned the base config.
func applyGeoOverrides(cmd *cobra.Command, scoring *scorer.Config) error {
	if cmd.Flags().Changed("hq") {
		lat, lon, err := parseLatLon(scoreHQ)
		if err != nil {
			return err
		}
		scoring.HQLat, scoring.HQLon = lat, lon
	}
	if cmd.Flags().Changed("max-km") {
		scoring.MaxDistanceKM = scoreMaxKM
	}
	if len(scoreCategories) > 0 {
		scoring.TargetCategories = scoreCategories
	}
	return scoring.Validate()
}

// parseLatLon splits a "lat,lon" flag value into its coordinates.
func parseLatLon(s string) (float64, float64, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, eris.Errorf("invalid --hq %q (want lat,lon)", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, eris.Errorf("invalid --hq latitude %q", latStr)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, eris.Errorf("invalid --hq longitude %q", lonStr)
	}
	return lat, lon, nil
}

// applyWeightOverrides clones base and applies key=value overrides. The
// result is re-validated so a typo'd key or negative weight fails here,
// not silently mid-ranking.
func applyWeightOverrides(base *scorer.Config, overrides []string) (*scorer.Config, error) {
	out := base.Clone()
	for _, ov := range overrides {
		key, val, ok := strings.Cut(ov, "=")
		if !ok {
			return nil, eris.Errorf("invalid --weight %q (want key=value)", ov)
		}
		w, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, eris.Errorf("invalid --weight %q: %s is not a number", ov, val)
		}
		out.Weights[strings.TrimSpace(key)] = w
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// formatDealsTable writes a compact ranked listing to w.
func formatDealsTable(out io.Writer, deals []model.Deal) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tSCORE\tID\tTITLE\tPRICE\tLOCATION")
	_, _ = fmt.Fprintln(w, "----\t-----\t--\t-----\t-----\t--------")

	for i, d := range deals {
		title := d.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		price := ""
		if d.AskingPrice != nil {
			price = fmt.Sprintf("$%.0f", *d.AskingPrice)
		}
		_, _ = fmt.Fprintf(w, "%d\t%.3f\t%s\t%s\t%s\t%s\n",
			i+1, d.Score, d.ID, title, price, d.Location)
	}
	_ = w.Flush()
}
