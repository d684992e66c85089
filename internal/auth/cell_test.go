package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// stubRefresher counts calls and optionally blocks until released.
type stubRefresher struct {
	calls   atomic.Int64
	release chan struct{}
	token   string
	err     error
}

func (s *stubRefresher) Refresh(ctx context.Context, _ domain.AuthContext, rt string) (*oauth2.Token, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token, RefreshToken: rt + "-rotated"}, nil
}

func testCreds() domain.CredentialSet {
	return domain.CredentialSet{BearerToken: "old", RefreshToken: "rt"}
}

func TestCell_Refresh_UpdatesCredentials(t *testing.T) {
	ref := &stubRefresher{token: "new"}
	cell := NewCell(testCreds(), ref)

	_, gen := cell.Snapshot()
	creds, err := cell.Refresh(context.Background(), gen)

	require.NoError(t, err)
	assert.Equal(t, "new", creds.BearerToken)
	assert.Equal(t, "rt-rotated", creds.RefreshToken)

	snap, newGen := cell.Snapshot()
	assert.Equal(t, "new", snap.BearerToken)
	assert.Equal(t, gen+1, newGen)
	assert.Equal(t, 1, cell.Refreshes())
}

func TestCell_Refresh_StaleGenerationReusesResult(t *testing.T) {
	ref := &stubRefresher{token: "new"}
	cell := NewCell(testCreds(), ref)

	_, gen := cell.Snapshot()
	_, err := cell.Refresh(context.Background(), gen)
	require.NoError(t, err)

	// A second caller that saw the old token must not refresh again.
	creds, err := cell.Refresh(context.Background(), gen)
	require.NoError(t, err)
	assert.Equal(t, "new", creds.BearerToken)
	assert.Equal(t, int64(1), ref.calls.Load())
}

func TestCell_Refresh_ConcurrentCallersCollapse(t *testing.T) {
	ref := &stubRefresher{token: "new", release: make(chan struct{})}
	cell := NewCell(testCreds(), ref)
	_, gen := cell.Snapshot()

	const workers = 16
	var wg sync.WaitGroup
	results := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creds, err := cell.Refresh(context.Background(), gen)
			results[i] = creds.BearerToken
			errs[i] = err
		}(i)
	}

	// Let every goroutine reach the cell before the grant completes.
	require.Eventually(t, func() bool { return ref.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(ref.release)
	wg.Wait()

	assert.Equal(t, int64(1), ref.calls.Load())
	for i := 0; i < workers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "new", results[i])
	}
}

func TestCell_Refresh_NoRefreshToken(t *testing.T) {
	ref := &stubRefresher{token: "new"}
	cell := NewCell(domain.CredentialSet{BearerToken: "old"}, ref)

	_, err := cell.Refresh(context.Background(), 0)

	assert.ErrorIs(t, err, domain.ErrFatalAuth)
	assert.Zero(t, ref.calls.Load())
}

func TestCell_Refresh_NilRefresher(t *testing.T) {
	cell := NewCell(testCreds(), nil)

	_, err := cell.Refresh(context.Background(), 0)

	assert.ErrorIs(t, err, domain.ErrFatalAuth)
}

func TestCell_Refresh_FailureIsSticky(t *testing.T) {
	ref := &stubRefresher{err: errors.New("invalid_grant")}
	cell := NewCell(testCreds(), ref)

	_, err := cell.Refresh(context.Background(), 0)
	require.ErrorIs(t, err, domain.ErrFatalAuth)

	_, err = cell.Refresh(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrFatalAuth)
	assert.Equal(t, int64(1), ref.calls.Load())
}

func TestCell_Refresh_CancelledWaiter(t *testing.T) {
	ref := &stubRefresher{token: "new", release: make(chan struct{})}
	cell := NewCell(testCreds(), ref)

	go func() {
		_, _ = cell.Refresh(context.Background(), 0)
	}()
	require.Eventually(t, func() bool { return ref.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cell.Refresh(ctx, 0)

	assert.ErrorIs(t, err, context.Canceled)
	close(ref.release)
}

func TestCell_Refresh_EmptyAccessToken(t *testing.T) {
	ref := &stubRefresher{token: ""}
	cell := NewCell(testCreds(), ref)

	_, err := cell.Refresh(context.Background(), 0)

	assert.ErrorIs(t, err, domain.ErrFatalAuth)
}
