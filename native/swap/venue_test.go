package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/native/fixedpoint"
	"powerperp/native/oracle"
)

func newVenue(t *testing.T, fee uint64) *OracleVenue {
	t.Helper()
	feed := oracle.NewManual()
	if err := feed.SetDecimal("sqth-eth", "SQTH", "ETH", "0.3"); err != nil {
		t.Fatalf("seed oracle: %v", err)
	}
	venue, err := NewOracleVenue(common.HexToAddress("0x5a"), "sqth-eth", feed, fee)
	if err != nil {
		t.Fatalf("new venue: %v", err)
	}
	return venue
}

func TestOracleVenueSwapBothDirections(t *testing.T) {
	ctx := context.Background()
	venue := newVenue(t, 0)

	out, err := venue.Swap(ctx, "SQTH", "ETH", fixedpoint.FromUint(10), fixedpoint.MustParse("0.29"))
	if err != nil {
		t.Fatalf("sell swap: %v", err)
	}
	if out.Cmp(fixedpoint.FromUint(3)) != 0 {
		t.Fatalf("expected 3 ETH out, got %s", fixedpoint.Format(out))
	}

	out, err = venue.Swap(ctx, "ETH", "SQTH", fixedpoint.FromUint(3), nil)
	if err != nil {
		t.Fatalf("buy swap: %v", err)
	}
	// 1/0.3 truncates, so the output is a hair under 10.
	if fixedpoint.AbsDiff(out, fixedpoint.FromUint(10)).Cmp(big.NewInt(10)) > 0 {
		t.Fatalf("expected ~10 SQTH out, got %s", fixedpoint.Format(out))
	}
}

func TestOracleVenueSlippage(t *testing.T) {
	venue := newVenue(t, 30)
	_, err := venue.Swap(context.Background(), "SQTH", "ETH", fixedpoint.FromUint(10), fixedpoint.MustParse("0.3"))
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected slippage error, got %v", err)
	}
}

func TestOracleVenueRejectsBadInput(t *testing.T) {
	venue := newVenue(t, 0)
	if _, err := venue.Swap(context.Background(), "SQTH", "ETH", big.NewInt(0), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := NewOracleVenue(common.Address{}, "p", oracle.NewManual(), basisPoints); err == nil {
		t.Fatalf("expected fee validation error")
	}
	if _, err := venue.Swap(context.Background(), "BTC", "ETH", fixedpoint.FromUint(1), nil); !errors.Is(err, oracle.ErrUnknownPair) {
		t.Fatalf("expected unknown pair, got %v", err)
	}
}
