// Package teams probes organisational accounts through the Teams external
// user search on teams.microsoft.com.
package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/custodia-labs/teamsenum/internal/auth"
	"github.com/custodia-labs/teamsenum/internal/connectors/microsoft"
	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// Ensure Searcher implements the interface.
var _ driven.Prober = (*Searcher)(nil)

// Diagnostics stored as info when a search does not return a profile.
const (
	MsgForbiddenEnrolled = "User exists but full user details can't be fetched. " +
		"Either the target tenant or your tenant disallow communication to external domains."
	MsgForbiddenNotEnrolled = "User exists but full user details can't be fetched. " +
		"You don't have a valid Teams subscription."
	MsgNotFound = "Target user not found. Either the user does not exist, is not Teams-enrolled " +
		"or is configured to not appear in search results (personal accounts only)"
)

// Config holds corporate search configuration.
type Config struct {
	// BaseURL is the middle tier base, see microsoft.Endpoints.TeamsSearch.
	BaseURL string
}

// Searcher looks up email addresses in the external search API.
type Searcher struct {
	config      Config
	client      *http.Client
	cell        *auth.Cell
	rateLimiter *microsoft.RateLimiter
}

// New creates a corporate searcher. Credentials are read from cell, which
// also coordinates the refresh after a 401.
func New(cfg Config, client *http.Client, cell *auth.Cell) *Searcher {
	return &Searcher{
		config:      cfg,
		client:      client,
		cell:        cell,
		rateLimiter: microsoft.NewRateLimiter(microsoft.ServiceTeams),
	}
}

// WithRateLimiter replaces the default search pacing.
func (s *Searcher) WithRateLimiter(l *microsoft.RateLimiter) *Searcher {
	s.rateLimiter = l
	return s
}

// profile holds the fields read from a search result.
type profile struct {
	DisplayName string `json:"displayName"`
	MRI         string `json:"mri"`
}

// Probe searches for target. Only ErrFatalAuth and cancellation are returned
// as errors; everything else is reported on the outcome.
func (s *Searcher) Probe(ctx context.Context, target domain.Target) (*domain.ProbeOutcome, error) {
	out := &domain.ProbeOutcome{Target: target}

	var resp *microsoft.Response
	err := s.cell.WithRefresh(ctx, func(ctx context.Context, creds domain.CredentialSet) error {
		r, err := s.search(ctx, target.Identifier, creds.BearerToken)
		if err != nil {
			return err
		}
		if microsoft.IsUnauthorised(r.StatusCode) {
			logger.Debug("teams: access token rejected while searching %s", target.Identifier)
			return domain.ErrAuthExpired
		}
		resp = r
		return nil
	})
	if err != nil {
		if domain.IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		out.Err = err
		return out, nil
	}

	switch resp.StatusCode {
	case http.StatusForbidden:
		// Whether the searching account holds a Teams licence only changes the wording.
		out.Exists = true
		if creds, _ := s.cell.Snapshot(); creds.TeamsEnrolled {
			out.SetDiagnostic(MsgForbiddenEnrolled)
		} else {
			out.SetDiagnostic(MsgForbiddenNotEnrolled)
		}
	case http.StatusOK:
		s.decode(out, resp.Body)
	default:
		logger.Warn("teams: error while checking %s: status %d", target.Identifier, resp.StatusCode)
		out.Err = fmt.Errorf("search %s: %w", target.Identifier, microsoft.WrapError(resp.StatusCode))
	}

	return out, nil
}

// decode fills out from a 200 search body.
func (s *Searcher) decode(out *domain.ProbeOutcome, body []byte) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		out.Err = fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
		return
	}

	// Valid JSON that is not an array is an empty result.
	var results []json.RawMessage
	if err := json.Unmarshal(body, &results); err != nil || len(results) == 0 {
		out.SetDiagnostic(MsgNotFound)
		out.Err = domain.ErrNotFound
		return
	}

	out.Exists = true
	out.Info = raw
	out.UserInfoPayload = string(body)

	// Names are best effort; an oddly typed field does not undo the match.
	var first profile
	if err := json.Unmarshal(results[0], &first); err != nil {
		logger.Debug("teams: unreadable profile for %s: %v", out.Target.Identifier, err)
	}
	out.DisplayName = first.DisplayName
	out.MRI = first.MRI
}

func (s *Searcher) search(ctx context.Context, email, bearer string) (*microsoft.Response, error) {
	endpoint := fmt.Sprintf("%s/users/%s/externalsearchv3?includeTFLUsers=true",
		s.config.BaseURL, url.PathEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	microsoft.SetBrowserHeaders(req)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("X-Ms-Client-Version", microsoft.ClientVersion)

	return microsoft.Do(ctx, s.client, s.rateLimiter, req)
}
