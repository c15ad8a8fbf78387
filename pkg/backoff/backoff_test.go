package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		limit   time.Duration
		attempt int
		want    time.Duration
	}{
		{name: "first attempt", base: 5 * time.Millisecond, attempt: 0, want: 5 * time.Millisecond},
		{name: "doubles", base: 5 * time.Millisecond, attempt: 2, want: 20 * time.Millisecond},
		{name: "capped", base: 5 * time.Millisecond, limit: 12 * time.Millisecond, attempt: 3, want: 12 * time.Millisecond},
		{name: "negative attempt", base: time.Millisecond, attempt: -4, want: time.Millisecond},
		{name: "zero base", base: 0, attempt: 3, want: 0},
		{name: "huge attempt capped", base: time.Second, limit: time.Minute, attempt: 500, want: time.Minute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Exponential(tc.base, tc.limit, tc.attempt))
		})
	}
}

func TestFullJitterRange(t *testing.T) {
	assert.Zero(t, FullJitter(0))
	for i := 0; i < 100; i++ {
		d := FullJitter(10 * time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 10*time.Millisecond)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
