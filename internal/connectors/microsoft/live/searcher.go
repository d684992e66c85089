// Package live probes personal Microsoft accounts through the user search on
// teams.live.com.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/custodia-labs/teamsenum/internal/auth"
	"github.com/custodia-labs/teamsenum/internal/connectors/microsoft"
	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// Ensure Searcher implements the interface.
var _ driven.Prober = (*Searcher)(nil)

// StatusSuccess is the per-address status of a matched account.
const StatusSuccess = "Success"

// Diagnostics stored as info when a search does not return a profile.
const (
	MsgNotFound = "Target user not found. Either the user does not exist, " +
		"is not enrolled for Teams or disallows communication with your account"
	MsgNoInformation = "Cannot retrieve information about the user"
)

// Searcher looks up email addresses among personal Teams accounts.
// Both the bearer and the skype token are required; personal searches
// never refresh credentials.
type Searcher struct {
	baseURL     string
	client      *http.Client
	cell        *auth.Cell
	rateLimiter *microsoft.RateLimiter
}

// New creates a personal account searcher. baseURL is microsoft.Endpoints.LiveSearch.
func New(baseURL string, client *http.Client, cell *auth.Cell) *Searcher {
	return &Searcher{
		baseURL:     baseURL,
		client:      client,
		cell:        cell,
		rateLimiter: microsoft.NewRateLimiter(microsoft.ServiceLive),
	}
}

// WithRateLimiter replaces the default search pacing.
func (s *Searcher) WithRateLimiter(l *microsoft.RateLimiter) *Searcher {
	s.rateLimiter = l
	return s
}

// searchResult is the per-address entry of a search response.
type searchResult struct {
	Status       string          `json:"status"`
	UserProfiles json.RawMessage `json:"userProfiles"`
}

type profile struct {
	DisplayName string `json:"displayName"`
	MRI         string `json:"mri"`
}

// Probe searches for target. A 400 or 401 means the tokens are unusable and
// ends the run.
func (s *Searcher) Probe(ctx context.Context, target domain.Target) (*domain.ProbeOutcome, error) {
	out := &domain.ProbeOutcome{Target: target}
	creds, _ := s.cell.Snapshot()

	resp, err := s.search(ctx, target.Identifier, creds)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		out.Err = err
		return out, nil
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: unable to enumerate user, is the skype token valid?", domain.ErrFatalAuth)
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: unable to enumerate user, is the access token valid?", domain.ErrFatalAuth)
	default:
		logger.Warn("live: error while checking %s: status %d", target.Identifier, resp.StatusCode)
		out.Err = fmt.Errorf("search %s: %w", target.Identifier, microsoft.WrapError(resp.StatusCode))
		return out, nil
	}

	var results map[string]searchResult
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		out.Err = fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
		return out, nil
	}
	if len(results) == 0 {
		logger.Warn("live: cannot retrieve information about the user %s", target.Identifier)
		out.SetDiagnostic(MsgNoInformation)
		out.Err = domain.ErrNotFound
		return out, nil
	}

	s.decode(out, pick(results, target.Identifier))
	return out, nil
}

// pick returns the entry for email. The backend may normalise the key, so
// without an exact match the first key in sorted order is used.
func pick(results map[string]searchResult, email string) searchResult {
	if res, ok := results[email]; ok {
		return res
	}
	keys := slices.Sorted(maps.Keys(results))
	return results[keys[0]]
}

func (s *Searcher) decode(out *domain.ProbeOutcome, res searchResult) {
	if res.Status != StatusSuccess {
		out.SetDiagnostic(MsgNotFound)
		out.Err = domain.ErrNotFound
		return
	}

	out.Exists = true
	out.Info = res.UserProfiles

	var profiles []profile
	if err := json.Unmarshal(res.UserProfiles, &profiles); err != nil || len(profiles) == 0 {
		logger.Debug("live: %s matched without a usable profile", out.Target.Identifier)
		if len(out.Info) == 0 {
			out.Info = json.RawMessage("[]")
		}
		return
	}
	out.DisplayName = profiles[0].DisplayName
	out.MRI = profiles[0].MRI
}

func (s *Searcher) search(ctx context.Context, email string, creds domain.CredentialSet) (*microsoft.Response, error) {
	payload, err := json.Marshal(map[string][]string{"emails": {email}})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/users/searchUsers", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	microsoft.SetBrowserHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.BearerToken)
	req.Header.Set("X-Skypetoken", creds.SkypeToken)

	return microsoft.Do(ctx, s.client, s.rateLimiter, req)
}
