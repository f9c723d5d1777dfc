// Package serpapi wraps the SerpAPI Google Search endpoint. Searches are
// rate-limited to stay polite, retried on transient failures, and gated by
// a circuit breaker so a dead account does not burn a whole run.
package serpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/seq-capital/dealflow-cli/internal/resilience"
)

const defaultBaseURL = "https://serpapi.com/search"

// defaultPoliteness is the minimum gap between searches. SerpAPI meters by
// monthly volume, not rate; the gap is for being a good tenant.
const defaultPoliteness = 1500 * time.Millisecond

// Client performs Google searches through SerpAPI.
type Client interface {
	Search(ctx context.Context, params SearchParams) (*SearchResponse, error)
}

// SearchParams describes one search. GL localizes results to a country
// (e.g. "au", "nz"); Num caps the result count, defaulting to 10.
type SearchParams struct {
	Query string
	GL    string
	Num   int
}

// SearchResponse is the subset of SerpAPI's response the pipeline reads.
type SearchResponse struct {
	SearchMetadata SearchMetadata  `json:"search_metadata"`
	OrganicResults []OrganicResult `json:"organic_results"`
	Error          string          `json:"error,omitempty"`
}

// SearchMetadata identifies the search on SerpAPI's side.
type SearchMetadata struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// OrganicResult is one organic hit.
type OrganicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPoliteness sets the minimum gap between searches.
func WithPoliteness(gap time.Duration) Option {
	return func(c *httpClient) {
		if gap > 0 {
			c.limiter = rate.NewLimiter(rate.Every(gap), 1)
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewClient creates a SerpAPI client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(defaultPoliteness), 1),
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewBreaker("serpapi", 5, 60*time.Second),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	if c.apiKey == "" {
		return nil, eris.New("serpapi: missing api key")
	}
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("serpapi", "search")

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*SearchResponse, error) {
		return c.doSearch(ctx, params)
	})
	c.breaker.Record(err)
	return resp, err
}

func (c *httpClient) doSearch(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "serpapi: rate limit wait")
	}

	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", params.Query)
	q.Set("api_key", c.apiKey)
	num := params.Num
	if num <= 0 {
		num = 10
	}
	q.Set("num", strconv.Itoa(num))
	if params.GL != "" {
		q.Set("gl", params.GL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := eris.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, apiMessage(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "serpapi: unmarshal response")
	}

	// SerpAPI reports "no results" as an error field on a 200. That is an
	// empty page, not a failure.
	if result.Error != "" {
		if strings.Contains(result.Error, "hasn't returned any results") {
			result.Error = ""
			result.OrganicResults = nil
			return &result, nil
		}
		return nil, eris.Errorf("serpapi: %s", result.Error)
	}

	return &result, nil
}

// apiMessage extracts the error field from a SerpAPI error body, falling
// back to the raw body.
func apiMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
