package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"powerperp/native/fixedpoint"
)

// Manual serves fixed prices regardless of the lookback window. It is used by
// tests and for manual overrides.
type Manual struct {
	mu     sync.RWMutex
	prices map[string]*big.Int
	err    error
}

func NewManual() *Manual {
	return &Manual{prices: make(map[string]*big.Int)}
}

// Set stores the price of base in quote for the pool. Reads of a zero price
// fail with ErrInvalidPrice.
func (m *Manual) Set(pool, base, quote string, price *big.Int) {
	if m == nil || price == nil {
		return
	}
	m.mu.Lock()
	m.prices[pairKey(pool, base, quote)] = new(big.Int).Set(price)
	m.mu.Unlock()
}

// SetDecimal records the supplied decimal rate for the pair.
func (m *Manual) SetDecimal(pool, base, quote, price string) error {
	value, err := fixedpoint.Parse(price)
	if err != nil {
		return fmt.Errorf("manual oracle: %w", err)
	}
	m.Set(pool, base, quote, value)
	return nil
}

// FailWith makes every subsequent read return err until cleared with nil.
func (m *Manual) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *Manual) GetTwap(ctx context.Context, pool, base, quote string, _ uint64) (*big.Int, error) {
	return m.get(ctx, pool, base, quote)
}

func (m *Manual) GetHistoricalTwap(ctx context.Context, pool, base, quote string, secondsAgoStart, secondsAgoEnd uint64) (*big.Int, error) {
	if secondsAgoStart < secondsAgoEnd {
		return nil, ErrInvalidRange
	}
	return m.get(ctx, pool, base, quote)
}

func (m *Manual) get(ctx context.Context, pool, base, quote string) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("manual oracle not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if price, ok := m.prices[pairKey(pool, base, quote)]; ok {
		if price.Sign() == 0 {
			return nil, ErrInvalidPrice
		}
		return new(big.Int).Set(price), nil
	}
	if price, ok := m.prices[pairKey(pool, quote, base)]; ok {
		return invert(price)
	}
	return nil, fmt.Errorf("%w: %s/%s in %s", ErrUnknownPair, base, quote, pool)
}
