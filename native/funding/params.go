package funding

import (
	"fmt"
	"strings"
)

const (
	DefaultPeriod     = 86_400
	DefaultTwapPeriod = 420
	DefaultIndexScale = 10_000
)

// Params locates the oracle feeds and sets the funding cadence.
type Params struct {
	// Period is the number of seconds over which the full mark/index gap is
	// charged.
	Period     uint64
	TwapPeriod uint64
	// IndexScale divides the squared index so the debt token trades near
	// ethQuote/IndexScale native units.
	IndexScale uint64

	EthQuotePool  string
	PowerPerpPool string
	NativeSymbol  string
	QuoteSymbol   string
	DebtSymbol    string
}

func DefaultParams() Params {
	return Params{
		Period:        DefaultPeriod,
		TwapPeriod:    DefaultTwapPeriod,
		IndexScale:    DefaultIndexScale,
		EthQuotePool:  "eth-usd",
		PowerPerpPool: "sqth-eth",
		NativeSymbol:  "ETH",
		QuoteSymbol:   "USD",
		DebtSymbol:    "SQTH",
	}
}

func (p Params) Validate() error {
	if p.Period == 0 {
		return fmt.Errorf("funding: period must be positive")
	}
	if p.IndexScale == 0 {
		return fmt.Errorf("funding: index scale must be positive")
	}
	for name, value := range map[string]string{
		"eth quote pool":  p.EthQuotePool,
		"power perp pool": p.PowerPerpPool,
		"native symbol":   p.NativeSymbol,
		"quote symbol":    p.QuoteSymbol,
		"debt symbol":     p.DebtSymbol,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("funding: %s required", name)
		}
	}
	return nil
}
