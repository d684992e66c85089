package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
)

// Ensure OAuthRefresher implements the interface.
var _ driven.TokenRefresher = (*OAuthRefresher)(nil)

// Microsoft identity platform defaults.
const (
	//nolint:gosec // G101: Not credentials, OAuth endpoint URL
	DefaultTokenURL = "https://login.microsoftonline.com/organizations/oauth2/v2.0/token"
	// DefaultClientID is the public client ID of the Teams desktop application.
	DefaultClientID = "1fec8e78-bce4-4aaf-ab1b-5451cc387264"
)

// DefaultScopes requests a Teams-audience token that can be refreshed.
var DefaultScopes = []string{
	"https://api.spaces.skype.com/.default",
	"offline_access",
}

// OAuthRefresher performs the refresh_token grant against the Microsoft identity platform.
type OAuthRefresher struct {
	client *http.Client
}

// NewOAuthRefresher creates a refresher. A nil client uses a 30 second timeout client.
func NewOAuthRefresher(client *http.Client) *OAuthRefresher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthRefresher{client: client}
}

// tokenResponse is the token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	Description  string `json:"error_description"`
}

// Refresh exchanges refreshToken for a new access token.
// Microsoft may rotate the refresh token; when it does not, the old one is kept.
func (r *OAuthRefresher) Refresh(
	ctx context.Context,
	authCtx domain.AuthContext,
	refreshToken string,
) (*oauth2.Token, error) {
	tokenURL := authCtx.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	clientID := authCtx.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	scopes := authCtx.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", clientID)
	data.Set("refresh_token", refreshToken)
	data.Set("scope", strings.Join(scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if tokenResp.Error != "" {
			return nil, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, tokenResp.Error)
		}
		return nil, fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	tok := &oauth2.Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
	}
	if tokenResp.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("token refresh returned an unusable token")
	}

	return tok, nil
}
