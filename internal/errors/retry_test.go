package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	underlying := errors.New("permanent")
	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		calls++
		return underlying
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
	assert.True(t, errors.Is(err, underlying))
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(3), func() error {
		return errors.New("never retried")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(3), func() ([]string, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("transient")
		}
		return []string{"a", "b"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result)
}

func TestRetryWithResult_ZeroValueOnFailure(t *testing.T) {
	result, err := RetryWithResult(context.Background(), fastRetryConfig(1), func() (int, error) {
		return 42, errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 0, result)
}

func TestRetry_WithJitter(t *testing.T) {
	cfg := fastRetryConfig(2)
	cfg.Jitter = true

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
