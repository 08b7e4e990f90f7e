package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultFREDBaseURL = "https://api.stlouisfed.org"
	defaultFREDSeries  = "SOFR"
)

// FREDSource fetches the latest observation of an overnight-rate series from
// the FRED API and reports it as a decimal rate.
type FREDSource struct {
	apiKey  string
	baseURL string
	series  string
	client  *http.Client
}

// FREDOption configures FREDSource construction.
type FREDOption func(*FREDSource)

// WithFREDBaseURL overrides the API host, mainly for tests.
func WithFREDBaseURL(base string) FREDOption {
	return func(f *FREDSource) {
		if base != "" {
			f.baseURL = base
		}
	}
}

// WithFREDSeries selects a different rate series.
func WithFREDSeries(series string) FREDOption {
	return func(f *FREDSource) {
		if series != "" {
			f.series = series
		}
	}
}

// NewFREDSource builds a source for the SOFR series by default.
func NewFREDSource(apiKey string, opts ...FREDOption) *FREDSource {
	f := &FREDSource{
		apiKey:  apiKey,
		baseURL: defaultFREDBaseURL,
		series:  defaultFREDSeries,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type fredObservationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Latest returns the most recent published observation divided by 100.
// Unpublished placeholder observations (".") are skipped.
func (f *FREDSource) Latest(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("series_id", f.series)
	params.Set("api_key", f.apiKey)
	params.Set("file_type", "json")
	params.Set("sort_order", "desc")
	params.Set("limit", "5")

	endpoint := fmt.Sprintf("%s/fred/series/observations?%s", f.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload fredObservationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	for _, obs := range payload.Observations {
		rate, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		return rate / 100, nil
	}
	return 0, fmt.Errorf("no published observation for %s", f.series)
}
