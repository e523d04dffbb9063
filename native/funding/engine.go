// Package funding maintains the normalization factor that converts raw debt
// units into value-equivalent debt.
//
// Each refresh charges the gap between the mark price of the debt token and
// the squared index over the elapsed fraction of a funding period. The mark is
// clamped to [index*4/5, index*5/4] before the rate is derived, so pool
// manipulation cannot move the factor faster than that band allows.
package funding

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"powerperp/core/state"
	"powerperp/native/common"
	"powerperp/native/fixedpoint"
	"powerperp/native/oracle"
	"powerperp/observability"
)

var ErrDegeneratePrice = common.NewError(common.ClassExternalData, "funding: zero mark or index price")

var (
	clampFloorNum = big.NewInt(4)
	clampFloorDen = big.NewInt(5)
	clampCeilNum  = big.NewInt(5)
	clampCeilDen  = big.NewInt(4)
)

// Apply advances nf by dt seconds given mark and index prices. It performs no
// I/O. dt == 0 returns a copy of nf.
func Apply(nf, mark, index *big.Int, dt, period uint64) (*big.Int, error) {
	if nf == nil {
		return nil, fmt.Errorf("funding: nil normalization factor")
	}
	if dt == 0 {
		return new(big.Int).Set(nf), nil
	}
	if period == 0 {
		return nil, fixedpoint.ErrDivisionByZero
	}
	if mark == nil || index == nil || mark.Sign() == 0 || index.Sign() == 0 {
		return nil, ErrDegeneratePrice
	}
	rate, err := Rate(mark, index, dt, period)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Mul(nf, rate)
}

// Rate returns the multiplicative factor applied over dt seconds:
//
//	rate = 1e18*m / ((1e18+frac)*m/1e18 - frac*index/1e18)
//
// where m is the clamped mark and frac = dt*1e18/period.
func Rate(mark, index *big.Int, dt, period uint64) (*big.Int, error) {
	if mark.Sign() == 0 || index.Sign() == 0 {
		return nil, ErrDegeneratePrice
	}
	frac, err := fixedpoint.MulDiv(new(big.Int).SetUint64(dt), fixedpoint.One(), new(big.Int).SetUint64(period))
	if err != nil {
		return nil, err
	}
	floor, err := fixedpoint.MulDiv(index, clampFloorNum, clampFloorDen)
	if err != nil {
		return nil, err
	}
	ceil, err := fixedpoint.MulDiv(index, clampCeilNum, clampCeilDen)
	if err != nil {
		return nil, err
	}
	bounded := fixedpoint.Clamp(mark, floor, ceil)
	if bounded.Sign() == 0 {
		return nil, ErrDegeneratePrice
	}

	onePlusFrac, err := fixedpoint.Add(fixedpoint.One(), frac)
	if err != nil {
		return nil, err
	}
	markTerm, err := fixedpoint.Mul(onePlusFrac, bounded)
	if err != nil {
		return nil, err
	}
	indexTerm, err := fixedpoint.Mul(frac, index)
	if err != nil {
		return nil, err
	}
	denominator, err := fixedpoint.Sub(markTerm, indexTerm)
	if err != nil {
		return nil, fmt.Errorf("funding: rate denominator: %w", err)
	}
	if denominator.Sign() == 0 {
		return nil, fmt.Errorf("funding: rate denominator: %w", fixedpoint.ErrUnderflow)
	}
	return fixedpoint.MulDiv(fixedpoint.One(), bounded, denominator)
}

// Engine owns the persisted normalization factor.
type Engine struct {
	params  Params
	oracle  oracle.Oracle
	logger  *slog.Logger
	metrics *observability.PowerPerpMetrics
}

func NewEngine(params Params, feed oracle.Oracle) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, fmt.Errorf("funding: oracle required")
	}
	return &Engine{params: params, oracle: feed, logger: slog.Default()}, nil
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

func (e *Engine) SetMetrics(m *observability.PowerPerpMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

func (e *Engine) Params() Params { return e.params }

// Current returns the stored factor, or 1.0 with a zero timestamp before the
// first refresh.
func (e *Engine) Current(tx *state.Tx) (*state.NormalizationFactor, error) {
	nf, ok, err := tx.NormalizationFactor()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &state.NormalizationFactor{Value: fixedpoint.One()}, nil
	}
	return nf, nil
}

// Refresh brings the factor up to now and persists it. The first call
// bootstraps the factor at 1.0 without reading the oracle.
func (e *Engine) Refresh(ctx context.Context, tx *state.Tx, now uint64) (*state.NormalizationFactor, error) {
	next, changed, err := e.advance(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return next, nil
	}
	if err := tx.PutNormalizationFactor(next); err != nil {
		return nil, err
	}
	e.metrics.SetNormalizationFactor(next.Value)
	e.logger.Debug("normalization factor refreshed",
		slog.String("value", fixedpoint.Format(next.Value)),
		slog.Uint64("timestamp", next.LastUpdate))
	return next, nil
}

// Expected previews the factor Refresh would persist at now.
func (e *Engine) Expected(ctx context.Context, tx *state.Tx, now uint64) (*big.Int, error) {
	next, _, err := e.advance(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	return next.Value, nil
}

func (e *Engine) advance(ctx context.Context, tx *state.Tx, now uint64) (*state.NormalizationFactor, bool, error) {
	current, ok, err := tx.NormalizationFactor()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &state.NormalizationFactor{Value: fixedpoint.One(), LastUpdate: now}, true, nil
	}
	if now <= current.LastUpdate {
		return current, false, nil
	}
	mark, index, err := e.MarkAndIndex(ctx, current.Value)
	if err != nil {
		return nil, false, err
	}
	value, err := Apply(current.Value, mark, index, now-current.LastUpdate, e.params.Period)
	if err != nil {
		return nil, false, err
	}
	return &state.NormalizationFactor{Value: value, LastUpdate: now}, true, nil
}

// MarkAndIndex reads the TWAPs and returns
//
//	mark  = debtNativeTwap * ethQuoteTwap * indexScale / nf
//	index = ethQuoteTwap^2
func (e *Engine) MarkAndIndex(ctx context.Context, nf *big.Int) (*big.Int, *big.Int, error) {
	ethQuote, err := e.EthQuoteTwap(ctx, e.params.TwapPeriod)
	if err != nil {
		return nil, nil, err
	}
	debtNative, err := e.oracle.GetTwap(ctx, e.params.PowerPerpPool, e.params.DebtSymbol, e.params.NativeSymbol, e.params.TwapPeriod)
	if err != nil {
		return nil, nil, fmt.Errorf("funding: mark twap: %w", err)
	}
	if nf == nil || nf.Sign() == 0 {
		return nil, nil, fmt.Errorf("funding: %w", fixedpoint.ErrDivisionByZero)
	}
	debtQuote, err := fixedpoint.Mul(debtNative, ethQuote)
	if err != nil {
		return nil, nil, err
	}
	scaled, err := fixedpoint.MulInt(debtQuote, e.params.IndexScale)
	if err != nil {
		return nil, nil, err
	}
	mark, err := fixedpoint.Div(scaled, nf)
	if err != nil {
		return nil, nil, err
	}
	index, err := fixedpoint.Mul(ethQuote, ethQuote)
	if err != nil {
		return nil, nil, err
	}
	return mark, index, nil
}

// EthQuoteTwap returns the native/quote TWAP used for both funding and vault
// valuation.
func (e *Engine) EthQuoteTwap(ctx context.Context, period uint64) (*big.Int, error) {
	price, err := e.oracle.GetTwap(ctx, e.params.EthQuotePool, e.params.NativeSymbol, e.params.QuoteSymbol, period)
	if err != nil {
		return nil, fmt.Errorf("funding: index twap: %w", err)
	}
	return price, nil
}
