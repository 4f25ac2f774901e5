package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScoreZeroWithFewEvents(t *testing.T) {
	d := New(Config{WindowSize: 10, WindowDuration: time.Minute, AlertThreshold: 80, MaxReasonable: 10})
	require.Equal(t, 0.0, d.Score())
	d.Record()
	require.Equal(t, 0.0, d.Score())
}

func TestScoreRisesWithBurstRate(t *testing.T) {
	d := New(Config{WindowSize: 50, WindowDuration: time.Minute, AlertThreshold: 80, MaxReasonable: 10})
	base := time.Now()
	tick := base
	d.now = func() time.Time { return tick }
	for i := 0; i < 20; i++ {
		d.Record()
		tick = tick.Add(10 * time.Millisecond)
	}
	require.Greater(t, d.Score(), 50.0)
}

func TestCheckAlertFiresAboveThreshold(t *testing.T) {
	d := New(Config{WindowSize: 50, WindowDuration: time.Minute, AlertThreshold: 50, MaxReasonable: 10})
	tick := time.Now()
	d.now = func() time.Time { return tick }
	for i := 0; i < 30; i++ {
		d.Record()
		tick = tick.Add(5 * time.Millisecond)
	}
	alert := d.CheckAlert()
	require.NotNil(t, alert)
	require.GreaterOrEqual(t, alert.Score, alert.Threshold)
}

func TestCheckAlertNilWhenCalm(t *testing.T) {
	d := New(Config{WindowSize: 50, WindowDuration: time.Minute, AlertThreshold: 80, MaxReasonable: 10})
	tick := time.Now()
	d.now = func() time.Time { return tick }
	for i := 0; i < 5; i++ {
		d.Record()
		tick = tick.Add(5 * time.Second)
	}
	require.Nil(t, d.CheckAlert())
}

func TestPruneDropsOldEvents(t *testing.T) {
	d := New(Config{WindowSize: 50, WindowDuration: 100 * time.Millisecond, AlertThreshold: 80, MaxReasonable: 10})
	tick := time.Now()
	d.now = func() time.Time { return tick }
	d.Record()
	tick = tick.Add(time.Second)
	d.Record()
	require.Equal(t, 1, len(d.events))
}
