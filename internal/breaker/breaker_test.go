package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "emissions-gateway/internal/common/errors"
)

var errDownstream = errors.New("downstream failed")

func failing(ctx context.Context) error { return errDownstream }
func succeeding(ctx context.Context) error { return nil }

func tripped(t *testing.T, threshold int) *Breaker {
	t.Helper()
	b := New("test", threshold, 30*time.Second)
	for i := 0; i < threshold; i++ {
		require.Error(t, b.Do(context.Background(), failing))
	}
	require.Equal(t, StateOpen, b.state)
	return b
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", 3, 30*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Do(ctx, failing)
		assert.ErrorIs(t, err, errDownstream)
	}
	assert.Equal(t, StateClosed, b.State())

	require.Error(t, b.Do(ctx, failing))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("test", 3, 30*time.Second)
	ctx := context.Background()

	require.Error(t, b.Do(ctx, failing))
	require.Error(t, b.Do(ctx, failing))
	require.NoError(t, b.Do(ctx, succeeding))
	require.Error(t, b.Do(ctx, failing))
	require.Error(t, b.Do(ctx, failing))

	assert.Equal(t, StateClosed, b.State(), "interleaved success should reset the streak")
}

func TestBreaker_OpenFailsFastWithRetryAfter(t *testing.T) {
	b := tripped(t, 2)

	called := false
	err := b.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called, "open circuit must not invoke the call")
	assert.True(t, errors.Is(err, gwerrors.ErrCircuitOpen))

	var gwErr *gwerrors.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Greater(t, gwErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, gwErr.RetryAfter, 30*time.Second)
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	b := tripped(t, 2)
	now := time.Now()
	b.now = func() time.Time { return now }

	now = now.Add(31 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(context.Background(), succeeding))
	assert.Equal(t, StateClosed, b.State())

	// Fully recovered: the failure streak starts over.
	require.Error(t, b.Do(context.Background(), failing))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	b := tripped(t, 2)
	now := time.Now()
	b.now = func() time.Time { return now }

	now = now.Add(31 * time.Second)
	err := b.Do(context.Background(), failing)
	assert.ErrorIs(t, err, errDownstream)
	assert.Equal(t, StateOpen, b.state)

	// The cooldown restarts from the failed trial.
	err = b.Do(context.Background(), succeeding)
	assert.True(t, errors.Is(err, gwerrors.ErrCircuitOpen))
}

func TestBreaker_SingleTrialInHalfOpen(t *testing.T) {
	b := tripped(t, 2)
	now := time.Now()
	b.now = func() time.Time { return now }
	now = now.Add(31 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var trialErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		trialErr = b.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	// A second caller while the trial is in flight is rejected.
	err := b.Do(context.Background(), succeeding)
	assert.True(t, errors.Is(err, gwerrors.ErrCircuitOpen))

	close(release)
	wg.Wait()
	require.NoError(t, trialErr)
	assert.Equal(t, StateClosed, b.State())
}
