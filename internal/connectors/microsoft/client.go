package microsoft

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/custodia-labs/teamsenum/internal/logger"
)

// Request headers sent by the Teams web client.
const (
	ClientVersion = "1415/1.0.0.2023031528"
	UserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko)"

	// ConsumerTypeLive marks presence requests made with a personal account.
	ConsumerTypeLive = "teams4life"

	// DefaultRegion is the Teams middle tier region used for external search.
	DefaultRegion = "emea"
)

// Endpoints holds the base URLs of every backend the connectors call.
type Endpoints struct {
	// TeamsSearch is the middle tier base, e.g. https://teams.microsoft.com/api/mt/emea/beta
	TeamsSearch string
	// LiveSearch is the personal middle tier base.
	LiveSearch string
	// TeamsPresence is the organisational getpresence URL.
	TeamsPresence string
	// LivePresence is the personal getpresence URL.
	LivePresence string
}

// DefaultEndpoints returns the production endpoints for region.
// An empty region uses DefaultRegion.
func DefaultEndpoints(region string) Endpoints {
	region = strings.TrimSpace(region)
	if region == "" {
		region = DefaultRegion
	}
	return Endpoints{
		TeamsSearch:   "https://teams.microsoft.com/api/mt/" + region + "/beta",
		LiveSearch:    "https://teams.live.com/api/mt/beta",
		TeamsPresence: "https://presence.teams.microsoft.com/v1/presence/getpresence/",
		LivePresence:  "https://presence.teams.live.com/v1/presence/getpresence/",
	}
}

// NewHTTPClient returns a client with HTTP/2 enabled on its transport.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("unexpected default transport type %T", http.DefaultTransport)
	}
	transport = transport.Clone()
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// SetBrowserHeaders sets the headers every Teams request carries.
func SetBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do waits for the limiter, sends req and reads the whole body.
// A 429 pauses the limiter for the server's Retry-After; every transient
// status is logged.
func Do(ctx context.Context, client *http.Client, limiter *RateLimiter, req *http.Request) (*Response, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	logger.Debug("microsoft: %s %s status %d, body length %d", req.Method, req.URL.Path, resp.StatusCode, len(body))

	if IsRetryable(resp.StatusCode) {
		var backoff time.Duration
		if limiter != nil {
			backoff = limiter.observe(resp.StatusCode, resp.Header)
		}
		logger.Warn("microsoft: %s answered %d, transient (backing off %s)", req.URL.Host, resp.StatusCode, backoff)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
