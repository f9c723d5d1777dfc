package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seq-capital/dealflow-cli/internal/dedupe"
	"github.com/seq-capital/dealflow-cli/internal/model"
	"github.com/seq-capital/dealflow-cli/internal/normalize"
	"github.com/seq-capital/dealflow-cli/internal/scorer"
	"github.com/seq-capital/dealflow-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the deal book and a hit-ingest endpoint over HTTP",
	Long: `Starts an HTTP server exposing the ranked deal book (GET /api/v1/deals)
and an ingest endpoint (POST /api/v1/hits) that accepts raw search hits
from external collectors, normalizes and scores them, and upserts them
into the store.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		scoring, err := scorer.Load(cfg.Scoring.ConfigPath)
		if err != nil {
			return eris.Wrap(err, "load scoring config")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, scoring, cfg.Server.CORSOrigins),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API. Dependencies come in as arguments so
// tests can wire a throwaway store.
func newRouter(st store.Store, scoring *scorer.Config, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/deals", handleListDeals(st))
		r.Post("/hits", handleIngestHits(st, scoring))
	})

	return r
}

// handleListDeals serves the ranked deal book with optional filters.
func handleListDeals(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := store.DealFilter{
			Source:   q.Get("source"),
			Category: q.Get("category"),
			Limit:    50,
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				httpError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			filter.Limit = n
		}
		if v := q.Get("min_score"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "min_score must be a number")
				return
			}
			filter.MinScore = f
		}

		deals, err := st.ListDeals(r.Context(), filter)
		if err != nil {
			zap.L().Error("list deals failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "store query failed")
			return
		}
		if deals == nil {
			deals = []model.Deal{}
		}
		writeJSON(w, http.StatusOK, deals)
	}
}

// ingestRequest is one batch of raw hits from an external collector.
type ingestRequest struct {
	Source model.Source   `json:"source"`
	Hits   []model.RawHit `json:"hits"`
}

// handleIngestHits normalizes, dedupes, scores, and upserts a batch of
// raw hits, synchronously. The response reports how many deals survived.
func handleIngestHits(st store.Store, scoring *scorer.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Source.Name == "" {
			httpError(w, http.StatusBadRequest, "source.name is required")
			return
		}
		if len(req.Hits) == 0 {
			httpError(w, http.StatusBadRequest, "hits are required")
			return
		}

		deals := normalize.Hits(req.Hits, req.Source, time.Now().UTC())
		deals = dedupe.ByURL(deals)
		deals = scorer.Rank(scorer.Score(deals, scoring))

		written, err := st.UpsertDeals(r.Context(), deals)
		if err != nil {
			zap.L().Error("ingest upsert failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "store write failed")
			return
		}

		zap.L().Info("hits ingested",
			zap.String("source", req.Source.Name),
			zap.Int("hits", len(req.Hits)),
			zap.Int("deals", len(deals)),
			zap.Int64("written", written),
		)
		writeJSON(w, http.StatusOK, map[string]any{
			"source":  req.Source.Name,
			"hits":    len(req.Hits),
			"deals":   len(deals),
			"written": written,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
