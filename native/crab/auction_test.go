package crab

import (
	"errors"
	"math/big"
	"testing"

	"powerperp/native/fixedpoint"
)

func wad(s string) *big.Int { return fixedpoint.MustParse(s) }

func TestTargetHedge(t *testing.T) {
	cases := []struct {
		name      string
		price     string
		direction Direction
		amount    string
	}{
		{name: "neutral", price: "0.3", direction: DirectionNone, amount: "0"},
		{name: "price up buys debt back", price: "0.4", direction: DirectionBuy, amount: "50"},
		{name: "price down sells debt", price: "0.2", direction: DirectionSell, amount: "100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			direction, amount, err := TargetHedge(wad("100"), wad("60"), wad(tc.price))
			if err != nil {
				t.Fatalf("target hedge: %v", err)
			}
			if direction != tc.direction {
				t.Fatalf("expected %s, got %s", tc.direction, direction)
			}
			if got := fixedpoint.Format(amount); got != tc.amount {
				t.Fatalf("expected amount %s, got %s", tc.amount, got)
			}
		})
	}
	if _, _, err := TargetHedge(wad("1"), wad("1"), big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero price")
	}
}

func TestAuctionProgress(t *testing.T) {
	cases := []struct {
		now, trigger uint64
		expected     string
	}{
		{now: 100, trigger: 100, expected: "0"},
		{now: 50, trigger: 100, expected: "0"},
		{now: 1_900, trigger: 100, expected: "0.5"},
		{now: 3_700, trigger: 100, expected: "1"},
		{now: 99_999, trigger: 100, expected: "1"},
	}
	for _, tc := range cases {
		if got := fixedpoint.Format(AuctionProgress(tc.now, tc.trigger, 3_600)); got != tc.expected {
			t.Fatalf("progress(%d, %d): expected %s, got %s", tc.now, tc.trigger, tc.expected, got)
		}
	}
}

func TestAuctionPriceMovesAgainstStrategy(t *testing.T) {
	params := DefaultParams()
	twap := wad("0.3")
	for _, direction := range []Direction{DirectionSell, DirectionBuy} {
		var previous *big.Int
		for elapsed := uint64(0); elapsed <= params.AuctionTime; elapsed += 300 {
			multiplier, err := PriceMultiplier(AuctionProgress(elapsed, 0, params.AuctionTime), params.MinPriceMultiplier, params.MaxPriceMultiplier, direction)
			if err != nil {
				t.Fatalf("multiplier: %v", err)
			}
			price, err := fixedpoint.Mul(twap, multiplier)
			if err != nil {
				t.Fatalf("price: %v", err)
			}
			if previous != nil {
				worse := price.Cmp(previous) < 0
				if direction == DirectionBuy {
					worse = price.Cmp(previous) > 0
				}
				if !worse {
					t.Fatalf("%s auction price did not get worse at %ds: %s after %s", direction, elapsed, fixedpoint.Format(price), fixedpoint.Format(previous))
				}
			}
			previous = price
		}
	}

	start, err := PriceMultiplier(big.NewInt(0), params.MinPriceMultiplier, params.MaxPriceMultiplier, DirectionSell)
	if err != nil || start.Cmp(params.MaxPriceMultiplier) != 0 {
		t.Fatalf("sell auction must open at the max multiplier, got %v (%v)", start, err)
	}
	start, err = PriceMultiplier(big.NewInt(0), params.MinPriceMultiplier, params.MaxPriceMultiplier, DirectionBuy)
	if err != nil || start.Cmp(params.MinPriceMultiplier) != 0 {
		t.Fatalf("buy auction must open at the min multiplier, got %v (%v)", start, err)
	}
}

func TestPlanAuctionRejectsDirectionFlip(t *testing.T) {
	params := DefaultParams()
	// Slightly over-collateralized: sell at the TWAP, but the opening sell
	// price of 0.315 turns the hedge into a buy.
	_, err := PlanAuction(wad("100"), wad("61"), wad("0.3"), 1_000, 1_000, params)
	if !errors.Is(err, ErrAuctionTypeChanged) {
		t.Fatalf("expected auction type change, got %v", err)
	}

	plan, err := PlanAuction(wad("100"), wad("61"), wad("0.3"), 1_000+params.AuctionTime, 1_000, params)
	if err != nil {
		t.Fatalf("plan at end of auction: %v", err)
	}
	if plan.Direction != DirectionSell || fixedpoint.Format(plan.AuctionPrice) != "0.285" {
		t.Fatalf("unexpected plan: %s at %s", plan.Direction, fixedpoint.Format(plan.AuctionPrice))
	}
}

func TestPlanAuctionNeutral(t *testing.T) {
	_, err := PlanAuction(wad("100"), wad("60"), wad("0.3"), 0, 0, DefaultParams())
	if !errors.Is(err, ErrAlreadyNeutral) {
		t.Fatalf("expected already neutral, got %v", err)
	}
}

func TestPriceDeviated(t *testing.T) {
	threshold := wad("0.1")
	cases := []struct {
		price, last string
		expected    bool
	}{
		{price: "0.3", last: "0.3", expected: false},
		{price: "0.33", last: "0.3", expected: true},
		{price: "0.27", last: "0.3", expected: true},
		{price: "0.31", last: "0.3", expected: false},
	}
	for _, tc := range cases {
		got, err := priceDeviated(wad(tc.price), wad(tc.last), threshold)
		if err != nil {
			t.Fatalf("deviation: %v", err)
		}
		if got != tc.expected {
			t.Fatalf("deviation(%s, %s): expected %v", tc.price, tc.last, tc.expected)
		}
	}
}
