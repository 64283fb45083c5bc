package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(_ context.Context) (int, error) { return 0, errors.New("down") }
func healthy(_ context.Context) (int, error) { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("perplexity", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	assert.Equal(t, CircuitClosed, b.State())
	_, _ = Call(ctx, b, failing)
	assert.Equal(t, CircuitOpen, b.State())

	called := false
	_, err := Call(ctx, b, func(_ context.Context) (int, error) {
		called = true
		return 0, nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("perplexity", BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	require.Equal(t, CircuitOpen, b.State())

	now = now.Add(2 * time.Second)
	assert.Equal(t, CircuitHalfOpen, b.State())

	v, err := Call(ctx, b, healthy)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("perplexity", BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	now = now.Add(2 * time.Second)
	_, err := Call(ctx, b, failing)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CircuitOpen, b.State())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker("anthropic", BreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	_, _ = Call(ctx, b, healthy)
	_, _ = Call(ctx, b, failing)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	b := NewBreaker("anthropic", BreakerConfig{FailureThreshold: 1})
	_, _ = Call(context.Background(), b, func(_ context.Context) (int, error) {
		return 0, context.Canceled
	})
	assert.Equal(t, CircuitClosed, b.State())
}

func TestCall_NilBreaker(t *testing.T) {
	v, err := Call(context.Background(), nil, healthy)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
