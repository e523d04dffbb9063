package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"powerperp/native/common"
	"powerperp/native/fixedpoint"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newRecorderAt(start time.Time) (*Recorder, *fakeClock) {
	clock := &fakeClock{t: start}
	return NewRecorder(clock.Now), clock
}

func TestRecorderStepTwap(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1_000_000, 0)
	rec, clock := newRecorderAt(start)

	require.NoError(t, rec.RecordDecimal("eth-usd", "ETH", "USD", "3000", start))
	require.NoError(t, rec.RecordDecimal("eth-usd", "ETH", "USD", "6000", start.Add(300*time.Second)))
	clock.t = start.Add(400 * time.Second)

	// 300s at 3000 and 100s at 6000.
	got, err := rec.GetTwap(ctx, "eth-usd", "ETH", "USD", 400)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.MustParse("3750").String(), got.String())

	spot, err := rec.GetTwap(ctx, "eth-usd", "ETH", "USD", 0)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.MustParse("6000").String(), spot.String())

	// Window ending at the price jump only sees the old price.
	hist, err := rec.GetHistoricalTwap(ctx, "eth-usd", "ETH", "USD", 400, 100)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.MustParse("3000").String(), hist.String())
}

func TestRecorderStaleWindowFails(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1_000_000, 0)
	rec, clock := newRecorderAt(start)
	require.NoError(t, rec.RecordDecimal("eth-usd", "ETH", "USD", "3000", start))
	clock.t = start.Add(100 * time.Second)

	_, err := rec.GetTwap(ctx, "eth-usd", "ETH", "USD", 420)
	require.ErrorIs(t, err, ErrStalePrice)
	require.True(t, common.Retryable(err))

	_, err = rec.GetTwap(ctx, "eth-usd", "BTC", "USD", 10)
	require.ErrorIs(t, err, ErrUnknownPair)

	_, err = rec.GetHistoricalTwap(ctx, "eth-usd", "ETH", "USD", 10, 20)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestRecorderInversePair(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1_000_000, 0)
	rec, _ := newRecorderAt(start)
	require.NoError(t, rec.RecordDecimal("sqth-eth", "SQTH", "ETH", "0.25", start))

	got, err := rec.GetTwap(ctx, "sqth-eth", "ETH", "SQTH", 0)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.FromUint(4).String(), got.String())
}

func TestRecorderSampleCapDropsHistory(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1_000_000, 0)
	rec, clock := newRecorderAt(start)
	rec.SetSampleCap(2)
	for i := 0; i < 3; i++ {
		require.NoError(t, rec.RecordDecimal("p", "A", "B", "1", start.Add(time.Duration(i)*time.Minute)))
	}
	clock.t = start.Add(3 * time.Minute)
	_, err := rec.GetTwap(ctx, "p", "A", "B", 180)
	require.ErrorIs(t, err, ErrStalePrice)
	_, err = rec.GetTwap(ctx, "p", "A", "B", 120)
	require.NoError(t, err)
}

func TestRecorderRejectsBadObservations(t *testing.T) {
	start := time.Unix(1_000_000, 0)
	rec, _ := newRecorderAt(start)
	require.ErrorIs(t, rec.RecordDecimal("p", "A", "B", "0", start), ErrInvalidPrice)
	require.NoError(t, rec.RecordDecimal("p", "A", "B", "1", start))
	require.Error(t, rec.RecordDecimal("p", "A", "B", "1", start.Add(-time.Second)))
}

func TestManualOracle(t *testing.T) {
	ctx := context.Background()
	m := NewManual()
	require.NoError(t, m.SetDecimal("eth-usd", "ETH", "USD", "3000"))

	price, err := m.GetTwap(ctx, "eth-usd", "eth", "usd", 420)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.FromUint(3000).String(), price.String())

	boom := errors.New("rpc down")
	m.FailWith(boom)
	_, err = m.GetTwap(ctx, "eth-usd", "ETH", "USD", 420)
	require.ErrorIs(t, err, boom)
	m.FailWith(nil)

	m.Set("eth-usd", "ETH", "USD", fixedpoint.FromUint(0))
	_, err = m.GetTwap(ctx, "eth-usd", "ETH", "USD", 420)
	require.ErrorIs(t, err, ErrInvalidPrice)
}
