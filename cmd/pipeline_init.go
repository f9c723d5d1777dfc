package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/enrich"
	"github.com/seq-capital/dealflow-cli/internal/model"
	"github.com/seq-capital/dealflow-cli/internal/pipeline"
	"github.com/seq-capital/dealflow-cli/internal/resilience"
	"github.com/seq-capital/dealflow-cli/internal/scorer"
	"github.com/seq-capital/dealflow-cli/internal/sites"
	"github.com/seq-capital/dealflow-cli/internal/store"
	anthropicpkg "github.com/seq-capital/dealflow-cli/pkg/anthropic"
	"github.com/seq-capital/dealflow-cli/pkg/geocode"
	"github.com/seq-capital/dealflow-cli/pkg/serpapi"
)

// pipelineEnv holds the initialized store, clients, and pipeline needed
// by the run and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Scoring  *scorer.Config
	Sources  []model.Source
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store and API clients, loads the source
// catalogue and scoring config, and builds the Pipeline. A missing
// SerpAPI key, unreadable sites file, or invalid scoring config is fatal
// here rather than partway through a run. Callers should defer
// env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.SerpAPI.Key == "" {
		return nil, eris.New("serpapi key is required (DEALFLOW_SERPAPI_KEY)")
	}

	srcs, err := sites.Load(cfg.Sites.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load sites")
	}
	scoring, err := scorer.Load(cfg.Scoring.ConfigPath)
	if err != nil {
		return nil, eris.Wrap(err, "load scoring config")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	searchOpts := []serpapi.Option{
		serpapi.WithPoliteness(time.Duration(cfg.SerpAPI.PolitenessMS) * time.Millisecond),
	}
	if cfg.SerpAPI.BaseURL != "" {
		searchOpts = append(searchOpts, serpapi.WithBaseURL(cfg.SerpAPI.BaseURL))
	}
	if cfg.SerpAPI.MaxRetries > 0 {
		searchOpts = append(searchOpts, serpapi.WithRetry(resilience.WithMaxAttempts(cfg.SerpAPI.MaxRetries)))
	}
	searchClient := serpapi.NewClient(cfg.SerpAPI.Key, searchOpts...)

	// The heuristic pass always runs; enrich.enabled only gates the
	// Claude extraction calls.
	var aiClient anthropicpkg.Client
	if cfg.Enrich.Enabled {
		if cfg.Anthropic.Key == "" {
			zap.L().Warn("enrichment enabled but anthropic key not set, heuristics only")
		} else {
			aiClient = anthropicpkg.NewClient(cfg.Anthropic.Key)
		}
	}
	enricher := enrich.New(aiClient, enrich.Opts{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   int64(cfg.Anthropic.MaxTokens),
		Concurrency: cfg.Enrich.Concurrency,
	})

	var geocoder geocode.Client
	if cfg.Geocode.Enabled {
		geoOpts := []geocode.Option{
			geocode.WithRateLimit(float64(cfg.Geocode.RatePerSec)),
			geocode.WithCache(st, time.Duration(cfg.Geocode.CacheTTLDays)*24*time.Hour),
		}
		if cfg.Geocode.BaseURL != "" {
			geoOpts = append(geoOpts, geocode.WithBaseURL(cfg.Geocode.BaseURL))
		}
		if cfg.Geocode.UserAgent != "" {
			geoOpts = append(geoOpts, geocode.WithUserAgent(cfg.Geocode.UserAgent))
		}
		geocoder = geocode.NewClient(geoOpts...)
	}

	zap.L().Info("pipeline ready",
		zap.Int("sources", len(srcs)),
		zap.String("config_hash", scoring.Hash()),
		zap.Bool("enrich", cfg.Enrich.Enabled),
		zap.Bool("geocode", cfg.Geocode.Enabled),
	)

	p := pipeline.New(cfg, st, searchClient, enricher, geocoder, scoring, srcs)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Scoring:  scoring,
		Sources:  srcs,
	}, nil
}
