// Package presence fetches availability, device and out-of-office data for a
// Teams subject identified by MRI.
package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/teamsenum/internal/auth"
	"github.com/custodia-labs/teamsenum/internal/connectors/microsoft"
	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// Ensure Client implements the interface.
var _ driven.PresenceSource = (*Client)(nil)

// Variant selects the presence backend.
type Variant string

const (
	// VariantTeams queries the organisational backend with the bearer token.
	VariantTeams Variant = "teams"
	// VariantLive queries the personal backend with the skype token.
	VariantLive Variant = "live"
)

// Valid reports whether v names a known backend.
func (v Variant) Valid() bool {
	return v == VariantTeams || v == VariantLive
}

// Config holds presence client configuration.
type Config struct {
	Variant Variant
	// URL is the getpresence endpoint. Empty uses the default for Variant.
	URL string
}

// URLFor returns the endpoint of variant within ep.
func URLFor(ep microsoft.Endpoints, variant Variant) string {
	if variant == VariantLive {
		return ep.LivePresence
	}
	return ep.TeamsPresence
}

// Client decodes presence responses into domain records.
type Client struct {
	config      Config
	client      *http.Client
	cell        *auth.Cell
	rateLimiter *microsoft.RateLimiter
	now         func() time.Time
}

// New creates a presence client. A zero Variant means VariantTeams.
func New(cfg Config, client *http.Client, cell *auth.Cell) *Client {
	if cfg.Variant == "" {
		cfg.Variant = VariantTeams
	}
	if cfg.URL == "" {
		cfg.URL = URLFor(microsoft.DefaultEndpoints(""), cfg.Variant)
	}
	return &Client{
		config:      cfg,
		client:      client,
		cell:        cell,
		rateLimiter: microsoft.NewRateLimiter(microsoft.ServicePresence),
		now:         time.Now,
	}
}

// WithRateLimiter replaces the default presence pacing.
func (c *Client) WithRateLimiter(l *microsoft.RateLimiter) *Client {
	c.rateLimiter = l
	return c
}

// WithClock replaces the clock used to stamp observations.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// presenceEntry is one element of the getpresence response.
type presenceEntry struct {
	MRI      string `json:"mri"`
	Presence struct {
		Availability string `json:"availability"`
		DeviceType   string `json:"deviceType"`
		CalendarData struct {
			OutOfOfficeNote struct {
				Message string `json:"message"`
			} `json:"outOfOfficeNote"`
		} `json:"calendarData"`
	} `json:"presence"`
}

// GetPresence looks up id, a bare object ID or an MRI.
// Malformed identifiers fail before any request is made. A rejected token is
// reported as an unexpected status; presence lookups never refresh.
func (c *Client) GetPresence(ctx context.Context, id string) (*domain.PresenceRecord, error) {
	if err := domain.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	mri := domain.NormalizeMRI(id)
	_, guid := domain.SplitMRI(mri)

	resp, err := c.fetch(ctx, mri)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("presence: error while checking %s: status %d", mri, resp.StatusCode)
		return nil, fmt.Errorf("presence %s: %w", mri, &microsoft.StatusError{Code: resp.StatusCode})
	}

	var entries []presenceEntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return nil, fmt.Errorf("%w: presence %s: %w", domain.ErrMalformedResponse, mri, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: presence %s: empty response", domain.ErrMalformedResponse, mri)
	}

	entry := entries[0]
	device := entry.Presence.DeviceType
	if device == "" {
		device = domain.DefaultDeviceType
	}

	observed := c.now()
	return &domain.PresenceRecord{
		MRI:          mri,
		GUID:         guid,
		Availability: entry.Presence.Availability,
		DeviceType:   device,
		RawOOO:       entry.Presence.CalendarData.OutOfOfficeNote.Message,
		Raw:          json.RawMessage(resp.Body),
		ObservedAt:   observed,
		Bucket:       domain.BucketFor(observed),
	}, nil
}

func (c *Client) fetch(ctx context.Context, mri string) (*microsoft.Response, error) {
	payload, err := json.Marshal([]map[string]string{{"mri": mri}})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	microsoft.SetBrowserHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	creds, _ := c.cell.Snapshot()
	switch c.config.Variant {
	case VariantLive:
		req.Header.Set("X-Skypetoken", creds.SkypeToken)
		req.Header.Set("X-Ms-Client-Consumer-Type", microsoft.ConsumerTypeLive)
	default:
		req.Header.Set("Authorization", "Bearer "+creds.BearerToken)
		req.Header.Set("X-Ms-Client-Version", microsoft.ClientVersion)
	}

	return microsoft.Do(ctx, c.client, c.rateLimiter, req)
}
