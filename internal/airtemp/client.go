// Package airtemp talks to the data.gov.sg air-temperature API: it fetches
// one day's raw readings and extracts a single station's series from them.
package airtemp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-temperature-backfill/internal/backfill"
	"github.com/i474232898/air-temperature-backfill/internal/dates"
)

// DefaultBaseURL is the public air-temperature endpoint.
const DefaultBaseURL = "https://api.data.gov.sg/v1/environment/air-temperature"

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errMalformedBody = errors.New("response body is not valid JSON")
)

// Client fetches daily air-temperature payloads.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewClient builds a Client for baseURL. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "airtemp",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 10
		},
	})

	return &Client{
		name:    "data.gov.sg",
		baseURL: baseURL,
		http:    httpClient,
		circuit: cb,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Fetch returns the raw JSON body for date. It makes a single attempt; a day
// that fails here is retried by the next backfill run.
func (c *Client) Fetch(ctx context.Context, date dates.Key) (backfill.Payload, error) {
	if c.http == nil {
		return nil, errNoHTTPClient
	}

	values := url.Values{}
	values.Set("date", date.String())
	u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())

	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		// Handle rate limiting and server errors explicitly.
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if !json.Valid(body) {
			return nil, errMalformedBody
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s %s: %w: %v", c.name, date, errCircuitOpen, err)
		}
		return nil, fmt.Errorf("%s %s: %w", c.name, date, err)
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return backfill.Payload(body), nil
}
