// Package driving defines the ports through which the CLI drives the core.
package driving

import (
	"context"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// EnumerationService runs the enumeration pipeline over a list of targets.
type EnumerationService interface {
	// Run processes every target and returns only a run-fatal error.
	Run(ctx context.Context, targets []domain.Target) error
}
