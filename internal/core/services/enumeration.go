package services

import (
	"context"
	"time"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driving"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// Ensure EnumerationService implements the interface.
var _ driving.EnumerationService = (*EnumerationService)(nil)

// EnumerationService runs the enumerator over a target list through the dispatcher.
type EnumerationService struct {
	dispatcher *Dispatcher
	enumerator *Enumerator
}

// NewEnumerationService creates the service.
func NewEnumerationService(dispatcher *Dispatcher, enumerator *Enumerator) *EnumerationService {
	return &EnumerationService{
		dispatcher: dispatcher,
		enumerator: enumerator,
	}
}

// Run processes targets. It returns the first run-fatal error, or the
// context's error when the run was cancelled.
func (s *EnumerationService) Run(ctx context.Context, targets []domain.Target) error {
	log := logger.Named("enumeration")
	start := time.Now()
	log.Info().
		Int("targets", len(targets)).
		Int("workers", s.dispatcher.PoolSize).
		Dur("delay", s.dispatcher.Delay).
		Msg("run started")

	err := s.dispatcher.Run(ctx, targets, s.enumerator.Enumerate)

	stats := s.enumerator.Stats()
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Int64("processed", stats.Processed).
		Int64("found", stats.Found).
		Int64("failed", stats.Failed).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).
		Msg("run finished")
	return err
}

// Stats returns the enumerator counters.
func (s *EnumerationService) Stats() Stats {
	return s.enumerator.Stats()
}
