// Package auth owns the credentials shared by concurrent probes and the
// single-flight refresh that recovers them after a 401.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// Cell holds the current credentials. Reads are cheap snapshots; a refresh
// bumps the generation so callers can tell whether someone else already
// replaced the token they saw rejected.
type Cell struct {
	mu         sync.Mutex
	creds      domain.CredentialSet
	generation uint64
	inflight   chan struct{}
	failed     error

	refresher driven.TokenRefresher
	refreshes atomic.Int64
}

// NewCell creates a credential cell. refresher may be nil, in which case any
// refresh attempt fails with domain.ErrFatalAuth.
func NewCell(creds domain.CredentialSet, refresher driven.TokenRefresher) *Cell {
	return &Cell{
		creds:     creds,
		refresher: refresher,
	}
}

// Snapshot returns the current credentials and their generation.
func (c *Cell) Snapshot() (domain.CredentialSet, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds, c.generation
}

// Refreshes returns how many refresh grants were actually performed.
func (c *Cell) Refreshes() int {
	return int(c.refreshes.Load())
}

// Refresh replaces credentials of generation observed. Concurrent callers
// that observed the same generation share a single refresh grant.
func (c *Cell) Refresh(ctx context.Context, observed uint64) (domain.CredentialSet, error) {
	c.mu.Lock()
	for {
		if c.generation != observed {
			creds := c.creds
			c.mu.Unlock()
			return creds, nil
		}
		if c.failed != nil {
			err := c.failed
			c.mu.Unlock()
			return domain.CredentialSet{}, err
		}
		if c.inflight == nil {
			break
		}
		wait := c.inflight
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return domain.CredentialSet{}, ctx.Err()
		case <-wait:
		}
		c.mu.Lock()
	}

	if !c.creds.CanRefresh() || c.refresher == nil {
		c.failed = fmt.Errorf("%w: access token rejected and no refresh token available", domain.ErrFatalAuth)
		err := c.failed
		c.mu.Unlock()
		return domain.CredentialSet{}, err
	}

	done := make(chan struct{})
	c.inflight = done
	creds := c.creds
	c.mu.Unlock()

	logger.Warn("auth: access token rejected, requesting a new one")
	c.refreshes.Add(1)
	tok, err := c.refresher.Refresh(ctx, creds.Auth, creds.RefreshToken)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(done)
	c.inflight = nil

	if err != nil {
		// A cancelled caller must not poison the cell for everyone else.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.CredentialSet{}, err
		}
		c.failed = fmt.Errorf("%w: refresh failed: %w", domain.ErrFatalAuth, err)
		return domain.CredentialSet{}, c.failed
	}
	if tok == nil || tok.AccessToken == "" {
		c.failed = fmt.Errorf("%w: refresh returned no access token", domain.ErrFatalAuth)
		return domain.CredentialSet{}, c.failed
	}

	c.creds.BearerToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.creds.RefreshToken = tok.RefreshToken
	}
	c.generation++
	logger.Info("auth: got new access token (generation %d)", c.generation)
	return c.creds, nil
}
