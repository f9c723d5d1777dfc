// Package pipeline runs one sourcing pass end to end: search every
// configured listing site, normalize and dedupe the hits, optionally
// enrich and geocode them, then score, rank and persist the results.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seq-capital/dealflow-cli/internal/config"
	"github.com/seq-capital/dealflow-cli/internal/dedupe"
	"github.com/seq-capital/dealflow-cli/internal/enrich"
	"github.com/seq-capital/dealflow-cli/internal/model"
	"github.com/seq-capital/dealflow-cli/internal/normalize"
	"github.com/seq-capital/dealflow-cli/internal/scorer"
	"github.com/seq-capital/dealflow-cli/internal/store"
	"github.com/seq-capital/dealflow-cli/pkg/geocode"
	"github.com/seq-capital/dealflow-cli/pkg/serpapi"
)

// Pipeline orchestrates the phases of a sourcing run. The enricher and
// geocoder are optional; a nil value skips that phase.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	search   serpapi.Client
	enricher *enrich.Enricher
	geocoder geocode.Client
	scoring  *scorer.Config
	sources  []model.Source
}

// New creates a Pipeline with all dependencies. The scoring config must
// already be validated and sources already filtered to enabled ones.
func New(
	cfg *config.Config,
	st store.Store,
	search serpapi.Client,
	enricher *enrich.Enricher,
	geocoder geocode.Client,
	scoring *scorer.Config,
	sources []model.Source,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		search:   search,
		enricher: enricher,
		geocoder: geocoder,
		scoring:  scoring,
		sources:  sources,
	}
}

// Result is what one sourcing run produced. Deals are ranked best first.
type Result struct {
	Run   *model.Run
	Deals []model.Deal
}

// Run executes a full sourcing pass and records it in the store. The run
// row is created up front and marked completed or failed on the way out,
// so `dealflow runs` always shows what happened.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := zap.L()

	run, err := p.store.CreateRun(ctx, p.scoring.Hash())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log.Info("pipeline: run started",
		zap.String("run_id", run.ID),
		zap.Int("sources", len(p.sources)),
		zap.String("config_hash", run.ConfigHash),
	)

	deals, stats, err := p.execute(ctx)
	if err != nil {
		if failErr := p.store.FailRun(ctx, run.ID, err); failErr != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(failErr))
		}
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		return nil, err
	}

	if err := p.store.CompleteRun(ctx, run.ID, stats); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}
	finished := time.Now().UTC()
	run.Status = model.RunStatusCompleted
	run.Stats = stats
	run.FinishedAt = &finished

	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("deals", len(deals)),
		zap.Float64("top_score", stats.TopScore),
	)
	return &Result{Run: run, Deals: deals}, nil
}

// execute walks the phases in order and accumulates stage counts. The
// observation time is fixed once so every deal in the run shares the same
// DateListed and recency baseline.
func (p *Pipeline) execute(ctx context.Context) ([]model.Deal, model.RunStats, error) {
	log := zap.L()
	now := time.Now().UTC()
	var stats model.RunStats

	phase := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		duration := time.Since(start).Milliseconds()
		if err != nil {
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return err
		}
		log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
		return nil
	}

	var deals []model.Deal

	if err := phase("search", func() error {
		var err error
		deals, err = p.searchPhase(ctx, now, &stats)
		return err
	}); err != nil {
		return nil, stats, err
	}

	if err := phase("dedupe", func() error {
		deals = dedupe.ByURL(deals)
		stats.Deduped = len(deals)
		return nil
	}); err != nil {
		return nil, stats, err
	}

	if err := phase("enrich", func() error {
		if p.enricher == nil {
			log.Debug("pipeline: enrichment disabled")
			return nil
		}
		enriched, estats, err := p.enricher.Enrich(ctx, deals)
		if err != nil {
			return err
		}
		deals = enriched
		stats.Enriched = estats.Heuristic + estats.Extracted
		return nil
	}); err != nil {
		return nil, stats, err
	}

	if err := phase("geocode", func() error {
		if p.geocoder == nil {
			log.Debug("pipeline: geocoding disabled")
			return nil
		}
		matched, err := p.geocodePhase(ctx, deals)
		if err != nil {
			return err
		}
		stats.Geocoded = matched
		return nil
	}); err != nil {
		return nil, stats, err
	}

	if err := phase("score", func() error {
		deals = scorer.Rank(scorer.ScoreAt(deals, p.scoring, now))
		stats.Scored = len(deals)
		if len(deals) > 0 {
			stats.TopScore = deals[0].Score
		}
		return nil
	}); err != nil {
		return nil, stats, err
	}

	if err := phase("persist", func() error {
		written, err := p.store.UpsertDeals(ctx, deals)
		if err != nil {
			return eris.Wrap(err, "pipeline: upsert deals")
		}
		log.Info("pipeline: deals persisted", zap.Int64("written", written))

		counts, err := p.store.CountBySource(ctx)
		if err != nil {
			log.Warn("pipeline: source counts unavailable", zap.Error(err))
			return nil
		}
		log.Info("pipeline: store coverage", zap.Any("deals_by_source", counts))
		return nil
	}); err != nil {
		return nil, stats, err
	}

	return deals, stats, nil
}

// searchPhase fans out across sources bounded by pipeline.concurrency.
// A failed query is logged and skipped; the phase only fails when every
// query failed, which almost always means a dead API key or network.
func (p *Pipeline) searchPhase(ctx context.Context, now time.Time, stats *model.RunStats) ([]model.Deal, error) {
	concurrency := p.cfg.Pipeline.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	type sourceHits struct {
		queries int
		failed  int
		hits    int
		deals   []model.Deal
	}
	results := make([]sourceHits, len(p.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, src := range p.sources {
		g.Go(func() error {
			res := &results[i]
			for _, query := range src.Queries {
				res.queries++
				resp, err := p.search.Search(gctx, serpapi.SearchParams{
					Query: query,
					GL:    src.GL,
					Num:   p.cfg.SerpAPI.Num,
				})
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					res.failed++
					zap.L().Warn("pipeline: search failed",
						zap.String("source", src.Name),
						zap.String("query", query),
						zap.Error(err),
					)
					continue
				}
				res.hits += len(resp.OrganicResults)
				res.deals = append(res.deals, normalize.Hits(rawHits(resp.OrganicResults), src, now)...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: search aborted")
	}

	var deals []model.Deal
	var failed int
	for _, res := range results {
		stats.Queries += res.queries
		stats.Hits += res.hits
		failed += res.failed
		deals = append(deals, res.deals...)
	}
	stats.Sources = len(p.sources)
	stats.Normalized = len(deals)

	if failed > 0 && failed == stats.Queries {
		return nil, eris.Errorf("pipeline: all %d searches failed", failed)
	}
	return deals, nil
}

// geocodePhase fills in coordinates for deals that have a usable location
// string but no lat/lon yet. Lookups run once per distinct location and
// fan back out to every deal that shares it. Misses are not errors; the
// deal just scores neutral on proximity.
func (p *Pipeline) geocodePhase(ctx context.Context, deals []model.Deal) (int, error) {
	var locations []string
	seen := make(map[string]bool)
	for _, d := range deals {
		if d.Lat != nil || d.Location == "" || d.Location == normalize.Unknown {
			continue
		}
		if !seen[d.Location] {
			seen[d.Location] = true
			locations = append(locations, d.Location)
		}
	}
	if len(locations) == 0 {
		return 0, nil
	}

	results, err := p.geocoder.BatchGeocode(ctx, locations)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: batch geocode")
	}

	coords := make(map[string]geocode.Result, len(results))
	for i, r := range results {
		if r.Matched {
			coords[locations[i]] = r
		}
	}

	matched := 0
	for i := range deals {
		if deals[i].Lat != nil {
			continue
		}
		r, ok := coords[deals[i].Location]
		if !ok {
			continue
		}
		lat, lon := r.Lat, r.Lon
		deals[i].Lat, deals[i].Lon = &lat, &lon
		matched++
	}
	return matched, nil
}

// rawHits converts search results to the normalizer's input form.
func rawHits(results []serpapi.OrganicResult) []model.RawHit {
	hits := make([]model.RawHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, model.RawHit{
			Title:    r.Title,
			Link:     r.Link,
			Snippet:  r.Snippet,
			Position: r.Position,
		})
	}
	return hits
}
