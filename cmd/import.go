package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/dedupe"
	"github.com/seq-capital/dealflow-cli/internal/fetcher"
	"github.com/seq-capital/dealflow-cli/internal/scorer"
)

var (
	importFeed      string
	importFile      string
	importFormat    string
	importSheet     string
	importElement   string
	importDelimiter string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a broker feed into the deal store",
	Long: `Reads a bulk listing feed (CSV, XLSX, XML, JSON, or a zipped one of
those) from a local path, HTTP(S) URL, or FTP URL, normalizes the rows
into deals, and scores and upserts them.

Examples:
  dealflow import --feed BrokerDirect --file listings.csv
  dealflow import --feed NightlyDrop --file https://feeds.example.com.au/listings.zip
  dealflow import --feed LegacyXML --file ftp://feeds.example.com.au/listings.xml --element business`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts := fetcher.FeedOptions{
			Feed:      importFeed,
			Format:    fetcher.Format(importFormat),
			SheetName: importSheet,
			Element:   importElement,
		}
		if importDelimiter != "" {
			opts.Delimiter = []rune(importDelimiter)[0]
		}

		deals, err := fetcher.ImportFeed(ctx, importFile, opts)
		if err != nil {
			return eris.Wrap(err, "import feed")
		}
		deals = dedupe.ByURL(deals)

		scoring, err := scorer.Load(cfg.Scoring.ConfigPath)
		if err != nil {
			return eris.Wrap(err, "load scoring config")
		}
		deals = scorer.Rank(scorer.Score(deals, scoring))

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		written, err := st.UpsertDeals(ctx, deals)
		if err != nil {
			return eris.Wrap(err, "upsert deals")
		}

		zap.L().Info("import complete",
			zap.String("feed", importFeed),
			zap.String("file", importFile),
			zap.Int("deals", len(deals)),
			zap.Int64("written", written),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFeed, "feed", "", "source name recorded on imported deals (required)")
	importCmd.Flags().StringVar(&importFile, "file", "", "path or URL of the feed (required)")
	importCmd.Flags().StringVar(&importFormat, "format", "", "feed format override (csv, xlsx, xml, json, zip)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importElement, "element", "", "XML listing element name (default \"listing\")")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", "", "CSV delimiter override, e.g. \"|\"")
	_ = importCmd.MarkFlagRequired("feed")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
