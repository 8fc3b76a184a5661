package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(max int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       max,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	attempts, err := Retry(context.Background(), fastConfig(4), func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, attempts)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	cfg := fastConfig(5)
	cfg.ShouldRetry = func(error) bool { return false }

	calls := 0
	attempts, err := Retry(context.Background(), cfg, func() error {
		calls++
		return errors.New("fatal")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestRetryReportsRetries(t *testing.T) {
	cfg := fastConfig(3)
	var reported []int
	cfg.OnRetry = func(attempt int, err error) {
		reported = append(reported, attempt)
	}

	_, err := Retry(context.Background(), cfg, func() error {
		return errors.New("always")
	})

	assert.Error(t, err)
	assert.Equal(t, []int{1, 2}, reported)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := Retry(ctx, fastConfig(3), func() error {
		return errors.New("never reached")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}
