package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// DefaultPoolSize is the number of targets processed concurrently.
const DefaultPoolSize = 7

// WorkFunc processes one target. A non-nil error ends the run.
type WorkFunc func(ctx context.Context, target domain.Target) error

// Dispatcher runs work over targets in batches of PoolSize.
//
// Submissions are paced by Delay. Once PoolSize targets are in flight the
// dispatcher waits for the whole batch to finish before submitting more.
// The first error cancels the context shared by all workers and stops
// further submissions.
type Dispatcher struct {
	PoolSize int
	Delay    time.Duration
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(poolSize int, delay time.Duration) *Dispatcher {
	return &Dispatcher{PoolSize: poolSize, Delay: delay}
}

// Run processes targets and waits for every submitted worker.
// PoolSize <= 0 or an empty target list returns immediately.
func (d *Dispatcher) Run(ctx context.Context, targets []domain.Target, work WorkFunc) error {
	if d.PoolSize <= 0 || len(targets) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var batch sync.WaitGroup
	inFlight := 0

	for i, target := range targets {
		if err := sleep(gctx, d.Delay); err != nil {
			logger.Debug("dispatcher: stopping after %d of %d targets", i, len(targets))
			break
		}

		batch.Add(1)
		inFlight++
		g.Go(func() error {
			defer batch.Done()
			return work(gctx, target)
		})

		if inFlight >= d.PoolSize {
			batch.Wait()
			inFlight = 0
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// sleep waits for d or until ctx is done. It returns ctx's error in the
// latter case, including when ctx is already done and d is zero.
func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
