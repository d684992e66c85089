package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// Attempt tracks where a request is in its single-retry lifecycle.
type Attempt int

const (
	// FirstAttempt is the initial request with the credentials on hand.
	FirstAttempt Attempt = iota
	// RetriedOnce is the one request made after a refresh.
	RetriedOnce
	// Terminal means no further request will be made.
	Terminal
)

// String returns a short label for logs.
func (a Attempt) String() string {
	switch a {
	case FirstAttempt:
		return "first"
	case RetriedOnce:
		return "retried"
	default:
		return "terminal"
	}
}

// next returns the state following a 401 in state a.
func (a Attempt) next() Attempt {
	if a == FirstAttempt {
		return RetriedOnce
	}
	return Terminal
}

// WithRefresh runs call with the current credentials. When call reports
// domain.ErrAuthExpired the cell is refreshed and call runs exactly once more.
// A second rejection, or a refresh that cannot happen, is domain.ErrFatalAuth.
func (c *Cell) WithRefresh(ctx context.Context, call func(ctx context.Context, creds domain.CredentialSet) error) error {
	state := FirstAttempt
	for state != Terminal {
		creds, gen := c.Snapshot()
		err := call(ctx, creds)
		if !errors.Is(err, domain.ErrAuthExpired) {
			return err
		}

		state = state.next()
		if state == Terminal {
			return fmt.Errorf("%w: access token still rejected after refresh", domain.ErrFatalAuth)
		}
		if _, err := c.Refresh(ctx, gen); err != nil {
			return err
		}
	}
	return nil
}
