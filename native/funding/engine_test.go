package funding

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"powerperp/core/state"
	"powerperp/native/common"
	"powerperp/native/fixedpoint"
	"powerperp/native/oracle"
	"powerperp/storage"
)

const day = 86_400

func wad(s string) *big.Int { return fixedpoint.MustParse(s) }

func TestApplyNoElapsedTime(t *testing.T) {
	nf := wad("0.97")
	got, err := Apply(nf, wad("1"), wad("2"), 0, day)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Cmp(nf) != 0 {
		t.Fatalf("expected unchanged factor, got %s", got)
	}
}

func TestApplyAtParityKeepsFactor(t *testing.T) {
	index := wad("9000000")
	got, err := Apply(fixedpoint.One(), index, index, day/2, day)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Cmp(fixedpoint.One()) != 0 {
		t.Fatalf("expected 1.0, got %s", fixedpoint.Format(got))
	}
}

func TestApplyClampsManipulatedMark(t *testing.T) {
	index := wad("9000000")
	cases := []struct {
		name    string
		extreme *big.Int
		clamped *big.Int
	}{
		{name: "mark far above", extreme: new(big.Int).Mul(index, big.NewInt(1000)), clamped: wad("11250000")},
		{name: "mark far below", extreme: wad("0.000001"), clamped: wad("7200000")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, dt := range []uint64{1, 600, day / 4, day} {
				manipulated, err := Apply(fixedpoint.One(), tc.extreme, index, dt, day)
				if err != nil {
					t.Fatalf("apply manipulated: %v", err)
				}
				bounded, err := Apply(fixedpoint.One(), tc.clamped, index, dt, day)
				if err != nil {
					t.Fatalf("apply bounded: %v", err)
				}
				if manipulated.Cmp(bounded) != 0 {
					t.Fatalf("dt=%d: manipulated mark moved factor to %s, clamp gives %s", dt, manipulated, bounded)
				}
			}
		})
	}
}

func TestApplyRateStaysWithinClampBand(t *testing.T) {
	index := wad("9000000")
	marks := []string{"1", "5000000", "7200000", "8999999", "9000001", "10000000", "11250000", "90000000000"}
	for _, dt := range []uint64{60, 3600, day / 2, day} {
		lowest, err := Rate(wad("11250000"), index, dt, day)
		if err != nil {
			t.Fatalf("rate ceiling: %v", err)
		}
		highest, err := Rate(wad("7200000"), index, dt, day)
		if err != nil {
			t.Fatalf("rate floor: %v", err)
		}
		for _, m := range marks {
			rate, err := Rate(wad(m), index, dt, day)
			if err != nil {
				t.Fatalf("rate(%s): %v", m, err)
			}
			if rate.Cmp(lowest) < 0 || rate.Cmp(highest) > 0 {
				t.Fatalf("dt=%d mark=%s: rate %s outside [%s, %s]", dt, m, rate, lowest, highest)
			}
		}
	}
	// One full day at the ceiling charges 1.25/1.5 and at the floor 0.8/0.6.
	atCeil, _ := Rate(wad("11250000"), index, day, day)
	if fixedpoint.Format(atCeil) != "0.833333333333333333" {
		t.Fatalf("unexpected ceiling rate %s", fixedpoint.Format(atCeil))
	}
	atFloor, _ := Rate(wad("7200000"), index, day, day)
	if fixedpoint.Format(atFloor) != "1.333333333333333333" {
		t.Fatalf("unexpected floor rate %s", fixedpoint.Format(atFloor))
	}
}

func TestApplyFailures(t *testing.T) {
	if _, err := Apply(fixedpoint.One(), big.NewInt(0), wad("1"), 10, day); !errors.Is(err, ErrDegeneratePrice) {
		t.Fatalf("expected degenerate price for zero mark, got %v", err)
	}
	if _, err := Apply(fixedpoint.One(), wad("1"), big.NewInt(0), 10, day); !errors.Is(err, ErrDegeneratePrice) {
		t.Fatalf("expected degenerate price for zero index, got %v", err)
	}
	// Ten days at the floor drives the denominator negative.
	_, err := Apply(fixedpoint.One(), wad("1"), wad("9000000"), 10*day, day)
	if !errors.Is(err, fixedpoint.ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if common.Classify(err) != common.ClassArithmetic {
		t.Fatalf("underflow must classify as arithmetic")
	}
}

type harness struct {
	engine *Engine
	feed   *oracle.Manual
	mgr    *state.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	feed := oracle.NewManual()
	params := DefaultParams()
	if err := feed.SetDecimal(params.EthQuotePool, "ETH", "USD", "3000"); err != nil {
		t.Fatalf("seed eth: %v", err)
	}
	if err := feed.SetDecimal(params.PowerPerpPool, "SQTH", "ETH", "0.3"); err != nil {
		t.Fatalf("seed sqth: %v", err)
	}
	engine, err := NewEngine(params, feed)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &harness{engine: engine, feed: feed, mgr: state.NewManager(storage.NewMemDB())}
}

func (h *harness) refresh(t *testing.T, now uint64) *state.NormalizationFactor {
	t.Helper()
	var out *state.NormalizationFactor
	err := h.mgr.Update(func(tx *state.Tx) error {
		var err error
		out, err = h.engine.Refresh(context.Background(), tx, now)
		return err
	})
	if err != nil {
		t.Fatalf("refresh at %d: %v", now, err)
	}
	return out
}

func TestRefreshLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := uint64(1_700_000_000)

	nf := h.refresh(t, start)
	if nf.Value.Cmp(fixedpoint.One()) != 0 || nf.LastUpdate != start {
		t.Fatalf("unexpected bootstrap: %+v", nf)
	}

	// Mark 10% above index for one day.
	if err := h.feed.SetDecimal("sqth-eth", "SQTH", "ETH", "0.33"); err != nil {
		t.Fatalf("update mark: %v", err)
	}
	var preview *big.Int
	_ = h.mgr.View(func(tx *state.Tx) error {
		var err error
		preview, err = h.engine.Expected(ctx, tx, start+day)
		if err != nil {
			t.Fatalf("expected: %v", err)
		}
		current, err := h.engine.Current(tx)
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		if current.Value.Cmp(fixedpoint.One()) != 0 {
			t.Fatalf("preview must not persist, current %s", current.Value)
		}
		return nil
	})

	nf = h.refresh(t, start+day)
	if nf.Value.String() != "916666666666666666" {
		t.Fatalf("unexpected factor after one day: %s", nf.Value)
	}
	if preview.Cmp(nf.Value) != 0 {
		t.Fatalf("preview %s differs from refresh %s", preview, nf.Value)
	}

	again := h.refresh(t, start+day)
	if again.Value.Cmp(nf.Value) != 0 {
		t.Fatalf("same-timestamp refresh changed the factor")
	}
}

func TestRefreshOracleFailureAborts(t *testing.T) {
	h := newHarness(t)
	start := uint64(1_700_000_000)
	h.refresh(t, start)

	h.feed.FailWith(oracle.ErrStalePrice)
	err := h.mgr.Update(func(tx *state.Tx) error {
		_, err := h.engine.Refresh(context.Background(), tx, start+60)
		return err
	})
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
	if !common.Retryable(err) {
		t.Fatalf("oracle failures should be retryable by the caller")
	}
	h.feed.FailWith(nil)
	_ = h.mgr.View(func(tx *state.Tx) error {
		nf, _ := h.engine.Current(tx)
		if nf.LastUpdate != start {
			t.Fatalf("failed refresh must not persist, last update %d", nf.LastUpdate)
		}
		return nil
	})
}

func TestMarkAndIndex(t *testing.T) {
	h := newHarness(t)
	mark, index, err := h.engine.MarkAndIndex(context.Background(), fixedpoint.One())
	if err != nil {
		t.Fatalf("mark and index: %v", err)
	}
	if mark.Cmp(wad("9000000")) != 0 || index.Cmp(wad("9000000")) != 0 {
		t.Fatalf("unexpected mark %s index %s", fixedpoint.Format(mark), fixedpoint.Format(index))
	}
}
