package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/seq-capital/dealflow-cli/internal/resilience"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "dealflow-cli/1.0 (deals@seqcapital.com.au)"
)

// nominatimPlace is one entry of a Nominatim search response. The API
// returns lat and lon as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// geocodeNominatim queries the Nominatim search endpoint for one
// location. An empty result set is a no-match, not an error.
func (g *geocoder) geocodeNominatim(ctx context.Context, location string) (*Result, error) {
	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*Result, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "geocode: nominatim rate limit")
		}

		params := url.Values{
			"q":            {location},
			"format":       {"jsonv2"},
			"limit":        {"1"},
			"countrycodes": {"au,nz"},
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: nominatim build request")
		}
		req.Header.Set("User-Agent", g.userAgent)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: nominatim request"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return nil, statusErr
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: nominatim read body")
		}

		var places []nominatimPlace
		if err := json.Unmarshal(body, &places); err != nil {
			return nil, eris.Wrap(err, "geocode: nominatim parse response")
		}

		if len(places) == 0 {
			return &Result{Matched: false, Source: "nominatim"}, nil
		}

		lat, err := strconv.ParseFloat(places[0].Lat, 64)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: nominatim parse lat")
		}
		lon, err := strconv.ParseFloat(places[0].Lon, 64)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: nominatim parse lon")
		}

		return &Result{Lat: lat, Lon: lon, Source: "nominatim", Matched: true}, nil
	})
}
