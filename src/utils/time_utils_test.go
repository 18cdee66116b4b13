package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingDayUsesKST(t *testing.T) {
	// 2025-03-03 16:30 UTC is already 2025-03-04 in Seoul.
	ts := time.Date(2025, 3, 3, 16, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-04", TradingDay(ts))

	start := StartOfDay(ts)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, KST), start)
	assert.True(t, ResetTime(ts, "day").Equal(start))
}

func TestParseBrokerTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"20250304", time.Date(2025, 3, 4, 0, 0, 0, 0, KST)},
		{"202503040931", time.Date(2025, 3, 4, 9, 31, 0, 0, KST)},
		{"20250304093105", time.Date(2025, 3, 4, 9, 31, 5, 0, KST)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseBrokerTime(tc.in)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseBrokerTime("2025-03")
	assert.Error(t, err)
}

func TestSystemClockSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SystemClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFakeClockSleepAdvances(t *testing.T) {
	start := time.Date(2025, 1, 2, 9, 0, 0, 0, KST)
	c := NewFakeClock(start)

	require.NoError(t, c.Sleep(context.Background(), 30*time.Second))
	c.Advance(time.Minute)

	assert.Equal(t, start.Add(90*time.Second), c.Now())
	assert.Equal(t, []time.Duration{30 * time.Second}, c.Sleeps())
}
