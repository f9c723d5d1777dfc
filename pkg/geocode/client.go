// Package geocode resolves the free-text locations on deal listings to
// coordinates for proximity scoring. An embedded AU/NZ gazetteer answers
// the common capital and regional-centre cases without a network call;
// everything else goes to OSM Nominatim under its one-request-per-second
// usage policy. Results, including genuine misses, are cached through the
// store so repeat runs stay off the network.
package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/seq-capital/dealflow-cli/internal/resilience"
)

// Client resolves locations to coordinates. A miss is reported through
// Result.Matched, never as an error.
type Client interface {
	Geocode(ctx context.Context, location string) (*Result, error)
	BatchGeocode(ctx context.Context, locations []string) ([]Result, error)
}

// Result holds the outcome for one location.
type Result struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Source  string  `json:"source"` // "gazetteer" or "nominatim"
	Matched bool    `json:"matched"`
}

// Cache persists results between runs. Get returns nil data on a miss.
// store.Store satisfies this.
type Cache interface {
	GetCachedGeocode(ctx context.Context, locKey string) ([]byte, error)
	SetCachedGeocode(ctx context.Context, locKey string, data []byte, ttl time.Duration) error
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client for Nominatim requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithBaseURL points the client at a different Nominatim instance.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets the User-Agent header. Nominatim's usage policy
// requires one that identifies the application.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithRateLimit sets the requests-per-second limit for Nominatim calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithCache enables store-backed caching with the given TTL.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = cache
		g.cacheTTL = ttl
	}
}

// WithRetry overrides the retry policy for Nominatim calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

// WithBatchConcurrency sets the max parallel lookups for BatchGeocode.
func WithBatchConcurrency(n int) Option {
	return func(g *geocoder) {
		if n > 0 {
			g.batchConcurrency = n
		}
	}
}

type geocoder struct {
	httpClient       *http.Client
	baseURL          string
	userAgent        string
	limiter          *rate.Limiter
	cache            Cache
	cacheTTL         time.Duration
	retry            resilience.RetryConfig
	batchConcurrency int
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:       &http.Client{Timeout: 15 * time.Second},
		baseURL:          defaultBaseURL,
		userAgent:        defaultUserAgent,
		limiter:          rate.NewLimiter(1, 1), // Nominatim usage policy
		retry:            resilience.DefaultRetryConfig(),
		batchConcurrency: 4,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retry.OnRetry == nil {
		g.retry.OnRetry = resilience.RetryLogger("nominatim", "search")
	}
	return g
}

// Geocode resolves one location: cache, then gazetteer, then Nominatim.
// Provider failures are logged and reported as unmatched so a flaky
// network never sinks a pipeline run; only context cancellation surfaces
// as an error.
func (g *geocoder) Geocode(ctx context.Context, location string) (*Result, error) {
	norm := normalizeLocation(location)
	if norm == "" || norm == "unknown" {
		return &Result{Matched: false}, nil
	}

	key := cacheKey(norm)
	if cached := g.checkCache(ctx, key); cached != nil {
		return cached, nil
	}

	if c, ok := lookupGazetteer(norm); ok {
		res := &Result{Lat: c.lat, Lon: c.lon, Source: "gazetteer", Matched: true}
		g.storeCache(ctx, key, res)
		return res, nil
	}

	res, err := g.geocodeNominatim(ctx, location)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		zap.L().Debug("nominatim lookup failed",
			zap.String("location", location),
			zap.Error(err))
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	// Cache hits and genuine no-matches alike; transport errors above are
	// deliberately not cached.
	g.storeCache(ctx, key, res)
	return res, nil
}

// BatchGeocode resolves locations in parallel. Individual failures come
// back unmatched rather than failing the batch.
func (g *geocoder) BatchGeocode(ctx context.Context, locations []string) ([]Result, error) {
	if len(locations) == 0 {
		return nil, nil
	}

	results := make([]Result, len(locations))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.batchConcurrency)

	for i, loc := range locations {
		eg.Go(func() error {
			r, err := g.Geocode(gctx, loc)
			if err != nil || r == nil {
				results[i] = Result{Matched: false}
				return nil //nolint:nilerr // individual failures don't fail the batch
			}
			results[i] = *r
			return nil
		})
	}

	_ = eg.Wait()
	return results, nil
}

// cacheKey returns SHA-256 hex of the normalized location.
func cacheKey(normalized string) string {
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

func (g *geocoder) checkCache(ctx context.Context, key string) *Result {
	if g.cache == nil {
		return nil
	}
	data, err := g.cache.GetCachedGeocode(ctx, key)
	if err != nil || data == nil {
		return nil
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		zap.L().Debug("geocode cache entry unreadable", zap.Error(err))
		return nil
	}
	zap.L().Debug("geocode cache hit",
		zap.String("key", key[:12]),
		zap.Bool("matched", r.Matched))
	return &r
}

func (g *geocoder) storeCache(ctx context.Context, key string, r *Result) {
	if g.cache == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := g.cache.SetCachedGeocode(ctx, key, data, g.cacheTTL); err != nil {
		zap.L().Debug("geocode cache store failed", zap.Error(err))
	}
}
