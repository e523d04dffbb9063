package config

import (
	"fmt"
	"math/big"
	"strings"

	"powerperp/native/fixedpoint"
)

// MaxFeeBps bounds the venue fee below 100%.
const MaxFeeBps = 10_000

// Validate checks every section and the engine parameters derived from them.
func (c *Config) Validate() error {
	ctrl, err := c.ControllerParams()
	if err != nil {
		return err
	}
	if err := ctrl.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.FundingParams().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	strat, err := c.StrategyParams()
	if err != nil {
		return err
	}
	if err := strat.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strat.Address == ctrl.Address || strat.Address == ctrl.PositionCustody {
		return fmt.Errorf("config: strategy address collides with controller custody")
	}
	if strings.EqualFold(strat.ShareSymbol, ctrl.NativeSymbol) || strings.EqualFold(strat.ShareSymbol, ctrl.DebtSymbol) {
		return fmt.Errorf("config: share symbol %q collides with a collateral or debt token", strat.ShareSymbol)
	}

	for i, p := range c.Oracle.Prices {
		if strings.TrimSpace(p.Pool) == "" || strings.TrimSpace(p.Base) == "" || strings.TrimSpace(p.Quote) == "" {
			return fmt.Errorf("config: oracle.Prices[%d]: pool, base and quote required", i)
		}
		v, err := parseWAD(fmt.Sprintf("oracle.Prices[%d].Price", i), p.Price)
		if err != nil {
			return err
		}
		if v.Sign() == 0 {
			return fmt.Errorf("config: oracle.Prices[%d]: price must be positive", i)
		}
	}
	if c.Oracle.SampleCap < 0 {
		return fmt.Errorf("config: oracle.SampleCap must not be negative")
	}

	if _, _, err := c.VenueAddress(); err != nil {
		return err
	}
	if _, err := c.KeeperAddress(); err != nil {
		return err
	}
	if c.Venue.FeeBps >= MaxFeeBps {
		return fmt.Errorf("config: venue.FeeBps %d out of range", c.Venue.FeeBps)
	}

	switch c.Storage.Backend {
	case "mem":
	case "leveldb", "bolt":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("config: storage.Path required for %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("config: tracing.SampleRatio must be in [0, 1]")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("config: logging rotation limits must not be negative")
	}
	return nil
}

// SeedPrices returns the configured oracle seeds with prices parsed to WAD.
func (c *Config) SeedPrices() ([]Price, []*big.Int, error) {
	prices := make([]*big.Int, 0, len(c.Oracle.Prices))
	for i, p := range c.Oracle.Prices {
		v, err := fixedpoint.Parse(p.Price)
		if err != nil {
			return nil, nil, fmt.Errorf("config: oracle.Prices[%d]: %w", i, err)
		}
		prices = append(prices, v)
	}
	return c.Oracle.Prices, prices, nil
}
