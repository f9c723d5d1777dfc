package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/pipeline"
	"github.com/seq-capital/dealflow-cli/internal/store"
)

var (
	exportDir      string
	exportSource   string
	exportCategory string
	exportMinScore float64
	exportLimit    int
	exportTable    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write deals.json and latest.csv from the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		deals, err := st.ListDeals(ctx, store.DealFilter{
			Source:   exportSource,
			Category: exportCategory,
			MinScore: exportMinScore,
			Limit:    exportLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list deals")
		}

		dir := exportDir
		if dir == "" {
			dir = cfg.Export.Dir
		}
		if err := pipeline.WriteArtifacts(dir, deals); err != nil {
			return eris.Wrap(err, "write artifacts")
		}

		zap.L().Info("export complete",
			zap.String("dir", dir),
			zap.Int("deals", len(deals)),
		)

		if exportTable {
			formatDealsTable(os.Stdout, deals)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config)")
	exportCmd.Flags().StringVar(&exportSource, "source", "", "only deals from this source")
	exportCmd.Flags().StringVar(&exportCategory, "category", "", "only deals in this category")
	exportCmd.Flags().Float64Var(&exportMinScore, "min-score", 0, "only deals at or above this score")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max deals to export (0 = all)")
	exportCmd.Flags().BoolVar(&exportTable, "table", false, "also print the exported deals as a table")
	rootCmd.AddCommand(exportCmd)
}
