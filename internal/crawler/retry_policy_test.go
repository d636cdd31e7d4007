package crawler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewLinearRetryPolicy(3, 2*time.Second)
	transient := fmt.Errorf("boom")

	assert.True(t, p.ShouldRetry(transient, 1))
	assert.True(t, p.ShouldRetry(transient, 2))
	assert.False(t, p.ShouldRetry(transient, 3), "attempt budget exhausted")
	assert.False(t, p.ShouldRetry(nil, 1), "success never retries")
	assert.False(t, p.ShouldRetry(context.Canceled, 1), "cancellation never retries")
	assert.False(t, p.ShouldRetry(fmt.Errorf("wrapped: %w", context.Canceled), 1))

	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 2*time.Second, p.Backoff(0), "attempt clamps to 1")
}

func TestLinearRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewLinearRetryPolicy(0, 0)
	assert.True(t, p.ShouldRetry(fmt.Errorf("boom"), 2))
	assert.False(t, p.ShouldRetry(fmt.Errorf("boom"), 3))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
}

func TestFixedRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewFixedRetryPolicy(2, 50*time.Millisecond)
	transient := fmt.Errorf("boom")

	assert.True(t, p.ShouldRetry(transient, 1))
	assert.False(t, p.ShouldRetry(transient, 2))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.Equal(t, 50*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 50*time.Millisecond, p.Backoff(7))
}

func TestSleepHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, Sleep(context.Background(), time.Millisecond))
}
