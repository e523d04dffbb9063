package crab

import (
	"fmt"
	"math/big"

	"powerperp/native/fixedpoint"
)

// Direction is the side of the debt token the strategy trades in a hedge.
type Direction uint8

const (
	DirectionNone Direction = iota
	// DirectionSell mints debt and sells it for collateral.
	DirectionSell
	// DirectionBuy buys debt back, burns it and releases collateral.
	DirectionBuy
)

func (d Direction) String() string {
	switch d {
	case DirectionSell:
		return "sell"
	case DirectionBuy:
		return "buy"
	default:
		return "none"
	}
}

// directionFromSelling maps a caller's isSelling flag onto a Direction.
func directionFromSelling(isSelling bool) Direction {
	if isSelling {
		return DirectionSell
	}
	return DirectionBuy
}

// TargetHedge returns the debt amount the strategy must trade at price to
// restore 2*debt*price == collateral, along with its direction. A zero amount
// means the strategy is neutral at that price.
func TargetHedge(debt, collateral, price *big.Int) (Direction, *big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return DirectionNone, nil, fmt.Errorf("crab: non-positive price")
	}
	exposure, err := fixedpoint.Mul(new(big.Int).Lsh(debt, 1), price)
	if err != nil {
		return DirectionNone, nil, err
	}
	switch exposure.Cmp(collateral) {
	case 0:
		return DirectionNone, big.NewInt(0), nil
	case 1:
		amount, err := fixedpoint.Div(new(big.Int).Sub(exposure, collateral), price)
		if err != nil {
			return DirectionNone, nil, err
		}
		return directionOf(DirectionBuy, amount), amount, nil
	default:
		amount, err := fixedpoint.Div(new(big.Int).Sub(collateral, exposure), price)
		if err != nil {
			return DirectionNone, nil, err
		}
		return directionOf(DirectionSell, amount), amount, nil
	}
}

func directionOf(d Direction, amount *big.Int) Direction {
	if amount.Sign() == 0 {
		return DirectionNone
	}
	return d
}

// AuctionProgress is the elapsed share of the auction window, clamped to
// [0, 1].
func AuctionProgress(now, triggerTime, auctionTime uint64) *big.Int {
	if now <= triggerTime || auctionTime == 0 {
		return big.NewInt(0)
	}
	elapsed := now - triggerTime
	if elapsed >= auctionTime {
		return fixedpoint.One()
	}
	progress := new(big.Int).Mul(new(big.Int).SetUint64(elapsed), fixedpoint.One())
	return progress.Quo(progress, new(big.Int).SetUint64(auctionTime))
}

// PriceMultiplier ramps against the strategy as the auction runs: a sell
// auction starts at maxMultiplier and falls, a buy auction starts at
// minMultiplier and rises.
func PriceMultiplier(progress, minMultiplier, maxMultiplier *big.Int, d Direction) (*big.Int, error) {
	spread, err := fixedpoint.Sub(maxMultiplier, minMultiplier)
	if err != nil {
		return nil, err
	}
	step, err := fixedpoint.Mul(spread, progress)
	if err != nil {
		return nil, err
	}
	switch d {
	case DirectionSell:
		return fixedpoint.Sub(maxMultiplier, step)
	case DirectionBuy:
		return fixedpoint.Add(minMultiplier, step)
	default:
		return nil, fmt.Errorf("crab: no auction direction")
	}
}

// AuctionPlan is a fully priced hedge.
type AuctionPlan struct {
	Direction    Direction
	TriggerTime  uint64
	TwapPrice    *big.Int
	AuctionPrice *big.Int
	// Amount is the debt traded and Proceeds its native value at AuctionPrice.
	Amount   *big.Int
	Proceeds *big.Int
}

// PlanAuction derives the direction at the TWAP, prices the auction at the
// current ramp position and recomputes the hedge at that price. The direction
// must survive the repricing.
func PlanAuction(debt, collateral, twap *big.Int, now, triggerTime uint64, params Params) (*AuctionPlan, error) {
	direction, amount, err := TargetHedge(debt, collateral, twap)
	if err != nil {
		return nil, err
	}
	if direction == DirectionNone {
		return nil, ErrAlreadyNeutral
	}
	progress := AuctionProgress(now, triggerTime, params.AuctionTime)
	multiplier, err := PriceMultiplier(progress, params.MinPriceMultiplier, params.MaxPriceMultiplier, direction)
	if err != nil {
		return nil, err
	}
	auctionPrice, err := fixedpoint.Mul(twap, multiplier)
	if err != nil {
		return nil, err
	}
	repriced, amount, err := TargetHedge(debt, collateral, auctionPrice)
	if err != nil {
		return nil, err
	}
	if repriced != direction {
		return nil, fmt.Errorf("%w: %s at twap, %s at auction price", ErrAuctionTypeChanged, direction, repriced)
	}
	proceeds, err := fixedpoint.Mul(amount, auctionPrice)
	if err != nil {
		return nil, err
	}
	return &AuctionPlan{
		Direction:    direction,
		TriggerTime:  triggerTime,
		TwapPrice:    twap,
		AuctionPrice: auctionPrice,
		Amount:       amount,
		Proceeds:     proceeds,
	}, nil
}

// priceDeviated reports |price/last - 1| >= threshold.
func priceDeviated(price, last, threshold *big.Int) (bool, error) {
	if last == nil || last.Sign() == 0 {
		return false, nil
	}
	ratio, err := fixedpoint.Div(price, last)
	if err != nil {
		return false, err
	}
	return fixedpoint.AbsDiff(ratio, fixedpoint.One()).Cmp(threshold) >= 0, nil
}
