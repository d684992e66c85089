// Package driven defines the ports the core uses to reach the outside world.
package driven

import (
	"context"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// Prober searches an identity backend for a single target.
// The returned error is reserved for conditions that must end the run
// (domain.ErrFatalAuth, context cancellation). Per-target failures are
// reported through ProbeOutcome.Err.
type Prober interface {
	Probe(ctx context.Context, target domain.Target) (*domain.ProbeOutcome, error)
}

// PresenceSource fetches the presence of a subject by MRI or bare object ID.
type PresenceSource interface {
	GetPresence(ctx context.Context, id string) (*domain.PresenceRecord, error)
}
