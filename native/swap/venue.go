package swap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	pcommon "powerperp/native/common"
	"powerperp/native/fixedpoint"
	"powerperp/native/oracle"
)

var (
	ErrSlippageExceeded = pcommon.NewError(pcommon.ClassExternalData, "swap: slippage exceeded")
	ErrInvalidAmount    = pcommon.NewError(pcommon.ClassPrecondition, "swap: amount must be positive")
)

const basisPoints = 10_000

// Venue executes exact-input swaps. limitPrice is the worst acceptable price
// of tokenIn expressed in tokenOut; the realised amountOut/amountIn must not
// fall below it. The caller books the token movement between its account and
// Address() in the token ledger.
type Venue interface {
	Address() common.Address
	Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, limitPrice *big.Int) (*big.Int, error)
}

// OracleVenue fills every swap at the oracle spot price minus a fee.
type OracleVenue struct {
	address common.Address
	pool    string
	oracle  oracle.Oracle
	feeBps  uint64
}

func NewOracleVenue(address common.Address, pool string, feed oracle.Oracle, feeBps uint64) (*OracleVenue, error) {
	if feed == nil {
		return nil, fmt.Errorf("swap: oracle required")
	}
	if feeBps >= basisPoints {
		return nil, fmt.Errorf("swap: fee %d bps out of range", feeBps)
	}
	return &OracleVenue{address: address, pool: pool, oracle: feed, feeBps: feeBps}, nil
}

func (v *OracleVenue) Address() common.Address { return v.address }

// Quote returns the amount of tokenOut paid for amountIn before limit checks.
func (v *OracleVenue) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	price, err := v.oracle.GetTwap(ctx, v.pool, tokenIn, tokenOut, 0)
	if err != nil {
		return nil, fmt.Errorf("swap: price %s/%s: %w", tokenIn, tokenOut, err)
	}
	gross, err := fixedpoint.Mul(amountIn, price)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(gross, big.NewInt(int64(basisPoints-v.feeBps)), big.NewInt(basisPoints))
}

func (v *OracleVenue) Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, limitPrice *big.Int) (*big.Int, error) {
	out, err := v.Quote(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	if limitPrice != nil && limitPrice.Sign() > 0 {
		minOut, err := fixedpoint.Mul(amountIn, limitPrice)
		if err != nil {
			return nil, err
		}
		if out.Cmp(minOut) < 0 {
			return nil, fmt.Errorf("%w: %s out %s below minimum %s", ErrSlippageExceeded, tokenOut, fixedpoint.Format(out), fixedpoint.Format(minOut))
		}
	}
	return out, nil
}
