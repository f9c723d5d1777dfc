package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/store"
	"github.com/seq-capital/dealflow-cli/pkg/notion"
	"github.com/seq-capital/dealflow-cli/pkg/salesforce"
)

var (
	pushTo       string
	pushTop      int
	pushMinScore float64
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push top-ranked deals to Notion or Salesforce",
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
			MinScore: pushMinScore,
			Limit:    pushTop,
		})
		if err != nil {
			return eris.Wrap(err, "list deals")
		}
		if len(deals) == 0 {
			zap.L().Info("nothing to push")
			return nil
		}

		var created, updated int
		switch pushTo {
		case "notion":
			if cfg.Notion.Token == "" {
				return eris.New("notion token is required (DEALFLOW_NOTION_TOKEN)")
			}
			if cfg.Notion.DealDB == "" {
				return eris.New("notion deal DB ID is required (DEALFLOW_NOTION_DEAL_DB)")
			}
			nc := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(float64(cfg.Notion.RatePerSec)))
			created, updated, err = notion.PushDeals(ctx, nc, cfg.Notion.DealDB, deals)
			if err != nil {
				return eris.Wrap(err, "push to notion")
			}
		case "salesforce":
			sf, sfErr := initSalesforce()
			if sfErr != nil {
				return sfErr
			}
			created, updated, err = salesforce.PushLeads(ctx, sf, deals)
			if err != nil {
				return eris.Wrap(err, "push to salesforce")
			}
		default:
			return eris.Errorf("unknown push target %q (want notion or salesforce)", pushTo)
		}

		zap.L().Info("push complete",
			zap.String("to", pushTo),
			zap.Int("deals", len(deals)),
			zap.Int("created", created),
			zap.Int("updated", updated),
		)
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushTo, "to", "notion", "sink: notion or salesforce")
	pushCmd.Flags().IntVar(&pushTop, "top", 25, "max deals to push, best first (0 = all)")
	pushCmd.Flags().Float64Var(&pushMinScore, "min-score", 0, "only deals at or above this score")
	rootCmd.AddCommand(pushCmd)
}
