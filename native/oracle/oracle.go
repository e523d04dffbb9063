package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"powerperp/native/common"
	"powerperp/native/fixedpoint"
)

var (
	// ErrStalePrice indicates the requested window reaches further back than
	// the recorded history. The window is never silently shortened.
	ErrStalePrice   = common.NewError(common.ClassExternalData, "oracle: insufficient price history")
	ErrInvalidPrice = common.NewError(common.ClassExternalData, "oracle: degenerate price")
	ErrUnknownPair  = common.NewError(common.ClassExternalData, "oracle: unknown pair")
	ErrInvalidRange = common.NewError(common.ClassPrecondition, "oracle: invalid lookback range")
)

var errOutOfOrder = errors.New("oracle: observation older than latest sample")

// Oracle supplies time-weighted average prices of base denominated in quote,
// as WAD values.
type Oracle interface {
	// GetTwap averages over the last period seconds. A zero period returns
	// the latest spot price.
	GetTwap(ctx context.Context, pool, base, quote string, period uint64) (*big.Int, error)
	// GetHistoricalTwap averages over [now-secondsAgoStart, now-secondsAgoEnd].
	GetHistoricalTwap(ctx context.Context, pool, base, quote string, secondsAgoStart, secondsAgoEnd uint64) (*big.Int, error)
}

type observation struct {
	at    uint64
	price *big.Int
}

// Recorder keeps a step function of spot observations per pool and serves
// both directions of every recorded pair.
type Recorder struct {
	mu      sync.RWMutex
	now     func() time.Time
	history map[string][]observation
	cap     int
}

const defaultSampleCap = 4096

// NewRecorder constructs a recorder reading the current time from now. A nil
// clock falls back to time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now, history: make(map[string][]observation), cap: defaultSampleCap}
}

// SetSampleCap bounds the stored samples per pair. Dropping old samples makes
// long windows fail with ErrStalePrice.
func (r *Recorder) SetSampleCap(cap int) {
	if r == nil {
		return
	}
	if cap <= 0 {
		cap = defaultSampleCap
	}
	r.mu.Lock()
	r.cap = cap
	r.mu.Unlock()
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func pairKey(pool, base, quote string) string {
	return strings.ToLower(strings.TrimSpace(pool)) + "|" + normaliseSymbol(base) + "/" + normaliseSymbol(quote)
}

// Record appends a spot observation of base in quote at the supplied time.
// An observation at the same timestamp as the latest one replaces it.
func (r *Recorder) Record(pool, base, quote string, price *big.Int, at time.Time) error {
	if r == nil {
		return fmt.Errorf("oracle: recorder not configured")
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if err := fixedpoint.Check(price); err != nil {
		return err
	}
	ts := uint64(at.Unix())
	key := pairKey(pool, base, quote)
	r.mu.Lock()
	defer r.mu.Unlock()
	samples := r.history[key]
	if n := len(samples); n > 0 {
		last := samples[n-1]
		switch {
		case ts < last.at:
			return errOutOfOrder
		case ts == last.at:
			samples[n-1] = observation{at: ts, price: new(big.Int).Set(price)}
			return nil
		}
	}
	samples = append(samples, observation{at: ts, price: new(big.Int).Set(price)})
	if len(samples) > r.cap {
		samples = append([]observation(nil), samples[len(samples)-r.cap:]...)
	}
	r.history[key] = samples
	return nil
}

// RecordDecimal is Record for decimal strings such as "3000".
func (r *Recorder) RecordDecimal(pool, base, quote, price string, at time.Time) error {
	value, err := fixedpoint.Parse(price)
	if err != nil {
		return err
	}
	return r.Record(pool, base, quote, value, at)
}

func (r *Recorder) GetTwap(ctx context.Context, pool, base, quote string, period uint64) (*big.Int, error) {
	return r.GetHistoricalTwap(ctx, pool, base, quote, period, 0)
}

func (r *Recorder) GetHistoricalTwap(ctx context.Context, pool, base, quote string, secondsAgoStart, secondsAgoEnd uint64) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("oracle: recorder not configured")
	}
	if secondsAgoStart < secondsAgoEnd {
		return nil, ErrInvalidRange
	}
	now := uint64(r.now().Unix())
	if secondsAgoStart > now {
		return nil, ErrStalePrice
	}
	start, end := now-secondsAgoStart, now-secondsAgoEnd

	r.mu.RLock()
	samples, inverse, err := r.lookup(pool, base, quote)
	if err == nil {
		samples = append([]observation(nil), samples...)
	}
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	avg, err := twap(samples, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s/%s in %s: %w", base, quote, pool, err)
	}
	if inverse {
		return invert(avg)
	}
	return avg, nil
}

func (r *Recorder) lookup(pool, base, quote string) ([]observation, bool, error) {
	if samples, ok := r.history[pairKey(pool, base, quote)]; ok && len(samples) > 0 {
		return samples, false, nil
	}
	if samples, ok := r.history[pairKey(pool, quote, base)]; ok && len(samples) > 0 {
		return samples, true, nil
	}
	return nil, false, fmt.Errorf("%w: %s/%s in %s", ErrUnknownPair, base, quote, pool)
}

// twap integrates the step function over [start, end]. The first sample must
// not be newer than start.
func twap(samples []observation, start, end uint64) (*big.Int, error) {
	i := sort.Search(len(samples), func(i int) bool { return samples[i].at > start }) - 1
	if i < 0 {
		return nil, ErrStalePrice
	}
	if start == end {
		return new(big.Int).Set(samples[i].price), nil
	}
	sum := new(big.Int)
	cursor := start
	price := samples[i].price
	for _, obs := range samples[i+1:] {
		if obs.at >= end {
			break
		}
		sum.Add(sum, new(big.Int).Mul(price, new(big.Int).SetUint64(obs.at-cursor)))
		cursor = obs.at
		price = obs.price
	}
	sum.Add(sum, new(big.Int).Mul(price, new(big.Int).SetUint64(end-cursor)))
	avg := sum.Quo(sum, new(big.Int).SetUint64(end-start))
	if avg.Sign() == 0 {
		return nil, ErrInvalidPrice
	}
	return avg, nil
}

func invert(price *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() == 0 {
		return nil, ErrInvalidPrice
	}
	out, err := fixedpoint.Div(fixedpoint.One(), price)
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, ErrInvalidPrice
	}
	return out, nil
}
