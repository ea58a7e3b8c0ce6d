package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-tracker/internal/classify"
)

func TestWithRetryTerminalKindReturnsImmediately(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), testLogger(), 5, func() error {
		calls++
		return classify.New(classify.KindPrivateAccount, "private")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, classify.KindPrivateAccount, classify.KindOf(err))
}

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), testLogger(), 3, func() error {
		calls++
		if calls == 1 {
			return classify.New(classify.KindNetworkError, "connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), testLogger(), 2, func() error {
		calls++
		return classify.New(classify.KindRateLimited, "slow down")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, classify.KindRateLimited, classify.KindOf(err))
}

func TestWithRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, testLogger(), 3, func() error {
		return classify.New(classify.KindTimeout, "deadline")
	})

	require.Error(t, err)
	assert.Equal(t, classify.KindTimeout, classify.KindOf(err))
}

func TestWithRetryClampsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), testLogger(), 0, func() error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
