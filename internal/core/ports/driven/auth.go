package driven

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, auth domain.AuthContext, refreshToken string) (*oauth2.Token, error)
}
