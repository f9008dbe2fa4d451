package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_FirstWaitIsImmediate(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSimpleRateLimiter_SpacesActions(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)

	require.NoError(t, r.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiter_ContextCanceled(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, 2*time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestSimpleRateLimiter_DelayWithinBounds(t *testing.T) {
	r := NewSimpleRateLimiter(time.Second, 2*time.Second)

	for i := 0; i < 100; i++ {
		d := r.calculateDelay()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 2*time.Second)
	}

	r.SetDelay(3*time.Second, time.Second)
	assert.Equal(t, 3*time.Second, r.calculateDelay())
}

func TestAdaptiveRateLimiter_BacksOffAfterErrors(t *testing.T) {
	a := NewAdaptiveRateLimiter(10*time.Second, 20*time.Second)

	a.RecordError()
	a.RecordError()
	min, max := a.Delays()
	assert.Equal(t, 10*time.Second, min)
	assert.Equal(t, 20*time.Second, max)

	a.RecordError()
	min, max = a.Delays()
	assert.Equal(t, 15*time.Second, min)
	assert.Equal(t, 30*time.Second, max)
}

func TestAdaptiveRateLimiter_BackoffIsCapped(t *testing.T) {
	a := NewAdaptiveRateLimiter(50*time.Second, 100*time.Second)

	for i := 0; i < 9; i++ {
		a.RecordError()
	}

	min, max := a.Delays()
	assert.Equal(t, 60*time.Second, min)
	assert.Equal(t, 120*time.Second, max)
}

func TestAdaptiveRateLimiter_RecoversToFloor(t *testing.T) {
	a := NewAdaptiveRateLimiter(10*time.Second, 20*time.Second)
	for i := 0; i < 3; i++ {
		a.RecordError()
	}

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}

	min, _ := a.Delays()
	assert.Equal(t, 10*time.Second, min)
}
