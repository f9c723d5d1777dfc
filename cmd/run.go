package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/pipeline"
)

var runNoExport bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full sourcing pass",
	Long:  "Searches every enabled site, normalizes and dedupes the hits, scores them, persists the results, and writes deals.json plus latest.csv.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		if !runNoExport {
			if err := pipeline.WriteArtifacts(cfg.Export.Dir, result.Deals); err != nil {
				return eris.Wrap(err, "write artifacts")
			}
			zap.L().Info("artifacts written",
				zap.String("dir", cfg.Export.Dir),
				zap.Int("deals", len(result.Deals)),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Run)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoExport, "no-export", false, "skip writing deals.json and latest.csv")
	rootCmd.AddCommand(runCmd)
}
