// Package enrich fills financial fields the normalizer could not read out
// of listing text. A regex pass over title and snippet runs first and
// costs nothing; deals that still carry an asking price but no financials
// can then go to Claude for extraction.
package enrich

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seq-capital/dealflow-cli/internal/model"
	"github.com/seq-capital/dealflow-cli/internal/normalize"
	"github.com/seq-capital/dealflow-cli/pkg/anthropic"
)

const (
	defaultConcurrency = 3
	defaultMaxTokens   = 1024
)

// Opts configures an Enricher.
type Opts struct {
	Model       string
	MaxTokens   int64
	Concurrency int
}

// Stats counts what an enrichment pass did.
type Stats struct {
	Heuristic    int   `json:"heuristic"`
	Requested    int   `json:"requested"`
	Extracted    int   `json:"extracted"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Enricher fills missing financials on normalized deals. A nil client
// limits the pass to the regex heuristics.
type Enricher struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	concurrency int
}

// New creates an Enricher. Concurrency and MaxTokens fall back to
// defaults when unset.
func New(client anthropic.Client, opts Opts) *Enricher {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Enricher{
		client:      client,
		model:       opts.Model,
		maxTokens:   maxTokens,
		concurrency: concurrency,
	}
}

// Enrich runs both passes over deals in place and returns the slice with
// a summary. Extraction failures on individual listings are logged and
// skipped; only a canceled context fails the pass.
func (e *Enricher) Enrich(ctx context.Context, deals []model.Deal) ([]model.Deal, Stats, error) {
	var stats Stats

	for i := range deals {
		if applyHeuristics(&deals[i]) {
			stats.Heuristic++
		}
	}

	if e.client == nil {
		return deals, stats, nil
	}

	var candidates []int
	for i := range deals {
		if needsExtraction(deals[i]) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return deals, stats, nil
	}
	stats.Requested = len(candidates)

	log := zap.L().With(zap.String("model", e.model), zap.Int("deals", len(candidates)))
	log.Info("extracting financials")

	system := anthropic.BuildCachedSystemBlocks(systemPrompt)

	var (
		mu    sync.Mutex
		usage anthropic.TokenUsage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, idx := range candidates {
		g.Go(func() error {
			resp, err := e.client.CreateMessage(gctx, anthropic.MessageRequest{
				Model:     e.model,
				MaxTokens: e.maxTokens,
				System:    system,
				Messages: []anthropic.Message{
					{Role: "user", Content: buildUserMessage(deals[idx])},
				},
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("extraction call failed",
					zap.String("deal", deals[idx].ID),
					zap.Error(err))
				return nil // one bad listing must not sink the pass
			}

			fin, perr := parseFinancials(resp)

			mu.Lock()
			defer mu.Unlock()
			usage.InputTokens += resp.Usage.InputTokens
			usage.OutputTokens += resp.Usage.OutputTokens
			usage.CacheCreationInputTokens += resp.Usage.CacheCreationInputTokens
			usage.CacheReadInputTokens += resp.Usage.CacheReadInputTokens

			if perr != nil {
				log.Warn("unparseable extraction response",
					zap.String("deal", deals[idx].ID),
					zap.Error(perr))
				return nil
			}
			if apply(&deals[idx], fin) {
				stats.Extracted++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return deals, stats, eris.Wrap(err, "enrich: extraction pass")
	}

	anthropic.LogCost(e.model, usage)
	stats.InputTokens = usage.InputTokens + usage.CacheCreationInputTokens + usage.CacheReadInputTokens
	stats.OutputTokens = usage.OutputTokens

	return deals, stats, nil
}

// needsExtraction selects listings worth a model call: priced, no
// financials yet, and some text to read.
func needsExtraction(d model.Deal) bool {
	return d.AskingPrice != nil && d.Revenue == nil && d.EBITDA == nil && d.Notes != ""
}

// applyHeuristics runs the regex pass over one deal. Only empty fields
// are filled.
func applyHeuristics(d *model.Deal) bool {
	return apply(d, ExtractFinancials(d.Title+" "+d.Notes))
}

// apply copies recovered figures onto the deal without overwriting
// anything already known. Reports whether the deal changed.
func apply(d *model.Deal, fin Financials) bool {
	changed := false
	if d.Revenue == nil && fin.Revenue != nil {
		d.Revenue = fin.Revenue
		changed = true
	}
	if d.EBITDA == nil && fin.EBITDA != nil {
		d.EBITDA = fin.EBITDA
		changed = true
	}
	if fin.Ownership != "" && (d.Ownership == "" || d.Ownership == normalize.Unknown) {
		d.Ownership = fin.Ownership
		changed = true
	}
	return changed
}
