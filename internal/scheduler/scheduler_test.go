package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuationDate(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	cases := []struct {
		name string
		tick time.Time
		want time.Time
	}{
		{
			name: "midday UTC",
			tick: time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC),
			want: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "just before midnight UTC",
			tick: time.Date(2026, 1, 15, 23, 59, 59, 0, time.UTC),
			want: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "local time crosses the UTC day boundary",
			tick: time.Date(2026, 1, 16, 0, 30, 0, 0, zurich),
			want: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, ValuationDate(tc.tick).Equal(tc.want))
		})
	}
}

func TestSchedulerRunInvokesAndStops(t *testing.T) {
	sched := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	invoked := make(chan time.Time, 1)

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx, func(ctx context.Context, asOfDate time.Time) error {
			select {
			case invoked <- asOfDate:
			default:
			}
			return nil
		})
	}()

	select {
	case asOfDate := <-invoked:
		assert.True(t, asOfDate.Equal(ValuationDate(asOfDate)), "run receives a truncated valuation date")
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never ticked")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	assert.Panics(t, func() {
		New(Options{}, zerolog.Nop())
	})
}
