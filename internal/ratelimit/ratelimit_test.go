package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowUnderLimit(t *testing.T) {
	l := New(Config{PerMinute: 5, PerHour: 100})
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow("device:abc"))
	}
}

func TestAllowExceedsMinuteWindow(t *testing.T) {
	l := New(Config{PerMinute: 3, PerHour: 100})
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("device:abc"))
	}
	err := l.Allow("device:abc")
	require.Error(t, err)
	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	require.Equal(t, "minute", exceeded.Window)
}

func TestWindowSlidesPastExpiry(t *testing.T) {
	l := New(Config{PerMinute: 2, PerHour: 100})
	tick := time.Now()
	l.now = func() time.Time { return tick }

	require.NoError(t, l.Allow("device:abc"))
	require.NoError(t, l.Allow("device:abc"))
	require.Error(t, l.Allow("device:abc"))

	tick = tick.Add(2 * time.Minute)
	require.NoError(t, l.Allow("device:abc"))
}

func TestResetClearsWindows(t *testing.T) {
	l := New(Config{PerMinute: 1, PerHour: 100})
	require.NoError(t, l.Allow("device:abc"))
	require.Error(t, l.Allow("device:abc"))
	l.Reset("device:abc")
	require.NoError(t, l.Allow("device:abc"))
}

func TestSubjectsAreIndependent(t *testing.T) {
	l := New(Config{PerMinute: 1, PerHour: 100})
	require.NoError(t, l.Allow("device:a"))
	require.NoError(t, l.Allow("device:b"))
}
