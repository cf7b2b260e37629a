package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowExhaustsAndRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"), "request %d", i)
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	now = now.Add(20 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestZeroLimitDeniesEverything(t *testing.T) {
	l := New(0, time.Minute)
	assert.False(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestSweepDropsIdleKeys(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(5, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(90 * time.Second)
	l.Allow("fresh")
	now = now.Add(60 * time.Second)
	l.sweep()

	assert.Equal(t, 1, l.Len())
	l.Reset("fresh")
	assert.Equal(t, 0, l.Len())
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 10*time.Second, New(6, time.Minute).RetryAfter())
	assert.Equal(t, time.Second, New(600, time.Minute).RetryAfter())
	assert.Equal(t, time.Minute, New(0, time.Minute).RetryAfter())
}
