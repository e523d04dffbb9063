package controller

import (
	"fmt"
	"math/big"

	"powerperp/core/state"
	"powerperp/native/fixedpoint"
)

const (
	positionKindStatic uint8 = 1
	positionKindRange  uint8 = 2
)

// Position is an external liquidity position attached to a vault. Value
// returns the native and debt-token amounts the position redeems for at the
// supplied pool price (native per debt token).
type Position interface {
	Value(price *big.Int) (native *big.Int, debt *big.Int, err error)
	Record() state.PositionRecord
}

// StaticPosition redeems for fixed token amounts regardless of price.
type StaticPosition struct {
	Native *big.Int
	Debt   *big.Int
}

func (p StaticPosition) Value(*big.Int) (*big.Int, *big.Int, error) {
	return copyOrZero(p.Native), copyOrZero(p.Debt), nil
}

func (p StaticPosition) Record() state.PositionRecord {
	return state.PositionRecord{Kind: positionKindStatic, Native: copyOrZero(p.Native), Debt: copyOrZero(p.Debt)}
}

// RangePosition is concentrated liquidity between two sqrt prices, with the
// debt token as token0 and native as token1. All values are WAD.
type RangePosition struct {
	Liquidity      *big.Int
	SqrtPriceLower *big.Int
	SqrtPriceUpper *big.Int
}

// NewRangePosition builds a range from plain price bounds.
func NewRangePosition(liquidity, priceLower, priceUpper *big.Int) (RangePosition, error) {
	lower, err := fixedpoint.Sqrt(priceLower)
	if err != nil {
		return RangePosition{}, err
	}
	upper, err := fixedpoint.Sqrt(priceUpper)
	if err != nil {
		return RangePosition{}, err
	}
	pos := RangePosition{Liquidity: liquidity, SqrtPriceLower: lower, SqrtPriceUpper: upper}
	return pos, pos.validate()
}

func (p RangePosition) validate() error {
	if p.Liquidity == nil || p.Liquidity.Sign() < 0 {
		return fmt.Errorf("%w: liquidity must not be negative", ErrInvalidPosition)
	}
	if p.SqrtPriceLower == nil || p.SqrtPriceUpper == nil || p.SqrtPriceLower.Sign() <= 0 || p.SqrtPriceLower.Cmp(p.SqrtPriceUpper) >= 0 {
		return fmt.Errorf("%w: range bounds must satisfy 0 < lower < upper", ErrInvalidPosition)
	}
	return nil
}

// Value applies the standard concentrated-liquidity amount formulas:
//
//	below range: debt   = L*(sb-sa)/(sa*sb)
//	above range: native = L*(sb-sa)
//	in range:    debt   = L*(sb-sp)/(sp*sb), native = L*(sp-sa)
func (p RangePosition) Value(price *big.Int) (*big.Int, *big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: non-positive pool price", ErrInvalidPosition)
	}
	sp, err := fixedpoint.Sqrt(price)
	if err != nil {
		return nil, nil, err
	}
	sa, sb := p.SqrtPriceLower, p.SqrtPriceUpper
	switch {
	case sp.Cmp(sa) <= 0:
		debt, err := amount0(p.Liquidity, sa, sb)
		return big.NewInt(0), debt, err
	case sp.Cmp(sb) >= 0:
		native, err := amount1(p.Liquidity, sa, sb)
		return native, big.NewInt(0), err
	default:
		debt, err := amount0(p.Liquidity, sp, sb)
		if err != nil {
			return nil, nil, err
		}
		native, err := amount1(p.Liquidity, sa, sp)
		if err != nil {
			return nil, nil, err
		}
		return native, debt, nil
	}
}

func (p RangePosition) Record() state.PositionRecord {
	return state.PositionRecord{
		Kind:           positionKindRange,
		Liquidity:      copyOrZero(p.Liquidity),
		SqrtPriceLower: copyOrZero(p.SqrtPriceLower),
		SqrtPriceUpper: copyOrZero(p.SqrtPriceUpper),
	}
}

func amount0(liquidity, lower, upper *big.Int) (*big.Int, error) {
	width, err := fixedpoint.Sub(upper, lower)
	if err != nil {
		return nil, err
	}
	num, err := fixedpoint.Mul(liquidity, width)
	if err != nil {
		return nil, err
	}
	den, err := fixedpoint.Mul(lower, upper)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Div(num, den)
}

func amount1(liquidity, lower, upper *big.Int) (*big.Int, error) {
	width, err := fixedpoint.Sub(upper, lower)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Mul(liquidity, width)
}

// PositionFromRecord restores the variant stored in a vault.
func PositionFromRecord(rec state.PositionRecord) (Position, error) {
	switch rec.Kind {
	case positionKindStatic:
		return StaticPosition{Native: rec.Native, Debt: rec.Debt}, nil
	case positionKindRange:
		pos := RangePosition{Liquidity: rec.Liquidity, SqrtPriceLower: rec.SqrtPriceLower, SqrtPriceUpper: rec.SqrtPriceUpper}
		if err := pos.validate(); err != nil {
			return nil, err
		}
		return pos, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidPosition, rec.Kind)
	}
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
