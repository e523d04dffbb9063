package config

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"powerperp/native/controller"
	"powerperp/native/crab"
	"powerperp/native/fixedpoint"
	"powerperp/native/funding"
	"powerperp/observability/logging"
	powerotel "powerperp/observability/otel"
)

type Config struct {
	Environment string     `toml:"Environment" yaml:"environment"`
	Controller  Controller `toml:"controller" yaml:"controller"`
	Funding     Funding    `toml:"funding" yaml:"funding"`
	Oracle      Oracle     `toml:"oracle" yaml:"oracle"`
	Strategy    Strategy   `toml:"strategy" yaml:"strategy"`
	Venue       Venue      `toml:"venue" yaml:"venue"`
	Keeper      Keeper     `toml:"keeper" yaml:"keeper"`
	Storage     Storage    `toml:"storage" yaml:"storage"`
	Logging     Logging    `toml:"logging" yaml:"logging"`
	Metrics     Metrics    `toml:"metrics" yaml:"metrics"`
	Tracing     Tracing    `toml:"tracing" yaml:"tracing"`
	Pauses      Pauses     `toml:"pauses" yaml:"pauses"`
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. A missing file is created with
// the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Environment: "local",
		Oracle: Oracle{
			Prices: []Price{
				{Pool: funding.DefaultParams().EthQuotePool, Base: "ETH", Quote: "USD", Price: "3000"},
				{Pool: funding.DefaultParams().PowerPerpPool, Base: "SQTH", Quote: "ETH", Price: "0.3"},
			},
		},
		Keeper:  Keeper{IntervalSeconds: 60},
		Storage: Storage{Backend: "leveldb", Path: "./powerperp-data"},
		Metrics: Metrics{ListenAddress: ":9464"},
	}
	cfg.applyDefaults()
	return cfg
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func orString(v *string, fallback string) {
	if strings.TrimSpace(*v) == "" {
		*v = fallback
	}
}

func orUint(v *uint64, fallback uint64) {
	if *v == 0 {
		*v = fallback
	}
}

func (c *Config) applyDefaults() {
	ctrl := controller.DefaultParams()
	fund := funding.DefaultParams()
	strat := crab.DefaultParams()

	orString(&c.Environment, "local")

	orString(&c.Controller.Address, ctrl.Address.Hex())
	orString(&c.Controller.PositionCustody, ctrl.PositionCustody.Hex())
	orString(&c.Controller.MinCollateralRatio, fixedpoint.Format(ctrl.MinCollateralRatio))
	orString(&c.Controller.MinCollateral, "0")
	orString(&c.Controller.LiquidationBounty, fixedpoint.Format(ctrl.LiquidationBounty))
	orString(&c.Controller.CloseFactor, fixedpoint.Format(ctrl.CloseFactor))
	orString(&c.Controller.SaveBounty, fixedpoint.Format(ctrl.SaveBounty))
	orUint(&c.Controller.IndexScale, ctrl.IndexScale)
	orUint(&c.Controller.TwapPeriod, ctrl.TwapPeriod)

	orUint(&c.Funding.Period, fund.Period)
	orUint(&c.Funding.TwapPeriod, fund.TwapPeriod)

	orString(&c.Oracle.EthQuotePool, fund.EthQuotePool)
	orString(&c.Oracle.PowerPerpPool, fund.PowerPerpPool)
	orString(&c.Oracle.NativeSymbol, fund.NativeSymbol)
	orString(&c.Oracle.QuoteSymbol, fund.QuoteSymbol)
	orString(&c.Oracle.DebtSymbol, fund.DebtSymbol)

	orString(&c.Strategy.Address, strat.Address.Hex())
	orUint(&c.Strategy.HedgeTimeThreshold, strat.HedgeTimeThreshold)
	orString(&c.Strategy.HedgePriceThreshold, fixedpoint.Format(strat.HedgePriceThreshold))
	orUint(&c.Strategy.AuctionTime, strat.AuctionTime)
	orUint(&c.Strategy.TwapPeriod, strat.TwapPeriod)
	orString(&c.Strategy.MinPriceMultiplier, fixedpoint.Format(strat.MinPriceMultiplier))
	orString(&c.Strategy.MaxPriceMultiplier, fixedpoint.Format(strat.MaxPriceMultiplier))
	orString(&c.Strategy.OTCPriceTolerance, fixedpoint.Format(strat.OTCPriceTolerance))
	orString(&c.Strategy.DomainName, strat.DomainName)
	orString(&c.Strategy.DomainVersion, strat.DomainVersion)
	orUint(&c.Strategy.ChainID, strat.ChainID.Uint64())
	orString(&c.Strategy.ShareSymbol, strat.ShareSymbol)

	orString(&c.Storage.Backend, "mem")
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	orString(&c.Logging.Level, "info")
}

func parseWAD(field, value string) (*big.Int, error) {
	v, err := fixedpoint.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("config: invalid %s %q: %w", field, value, err)
	}
	return v, nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("config: invalid %s %q", field, value)
	}
	return common.HexToAddress(value), nil
}

// ControllerParams converts the controller and oracle sections.
func (c *Config) ControllerParams() (controller.Params, error) {
	p := controller.DefaultParams()
	var err error
	if p.Address, err = parseAddress("controller.Address", c.Controller.Address); err != nil {
		return p, err
	}
	if p.PositionCustody, err = parseAddress("controller.PositionCustody", c.Controller.PositionCustody); err != nil {
		return p, err
	}
	wads := []struct {
		field string
		raw   string
		dst   **big.Int
	}{
		{"controller.MinCollateralRatio", c.Controller.MinCollateralRatio, &p.MinCollateralRatio},
		{"controller.MinCollateral", c.Controller.MinCollateral, &p.MinCollateral},
		{"controller.LiquidationBounty", c.Controller.LiquidationBounty, &p.LiquidationBounty},
		{"controller.CloseFactor", c.Controller.CloseFactor, &p.CloseFactor},
		{"controller.SaveBounty", c.Controller.SaveBounty, &p.SaveBounty},
	}
	for _, w := range wads {
		if *w.dst, err = parseWAD(w.field, w.raw); err != nil {
			return p, err
		}
	}
	p.IndexScale = c.Controller.IndexScale
	p.TwapPeriod = c.Controller.TwapPeriod
	p.NativeSymbol = c.Oracle.NativeSymbol
	p.DebtSymbol = c.Oracle.DebtSymbol
	p.PowerPerpPool = c.Oracle.PowerPerpPool
	return p, nil
}

// FundingParams converts the funding and oracle sections. The index scale is
// shared with the controller so both price debt identically.
func (c *Config) FundingParams() funding.Params {
	return funding.Params{
		Period:        c.Funding.Period,
		TwapPeriod:    c.Funding.TwapPeriod,
		IndexScale:    c.Controller.IndexScale,
		EthQuotePool:  c.Oracle.EthQuotePool,
		PowerPerpPool: c.Oracle.PowerPerpPool,
		NativeSymbol:  c.Oracle.NativeSymbol,
		QuoteSymbol:   c.Oracle.QuoteSymbol,
		DebtSymbol:    c.Oracle.DebtSymbol,
	}
}

// StrategyParams converts the strategy section.
func (c *Config) StrategyParams() (crab.Params, error) {
	p := crab.DefaultParams()
	var err error
	if p.Address, err = parseAddress("strategy.Address", c.Strategy.Address); err != nil {
		return p, err
	}
	if strings.TrimSpace(c.Strategy.Owner) != "" {
		if p.Owner, err = parseAddress("strategy.Owner", c.Strategy.Owner); err != nil {
			return p, err
		}
	}
	if p.HedgePriceThreshold, err = parseWAD("strategy.HedgePriceThreshold", c.Strategy.HedgePriceThreshold); err != nil {
		return p, err
	}
	if p.MinPriceMultiplier, err = parseWAD("strategy.MinPriceMultiplier", c.Strategy.MinPriceMultiplier); err != nil {
		return p, err
	}
	if p.MaxPriceMultiplier, err = parseWAD("strategy.MaxPriceMultiplier", c.Strategy.MaxPriceMultiplier); err != nil {
		return p, err
	}
	if p.OTCPriceTolerance, err = parseWAD("strategy.OTCPriceTolerance", c.Strategy.OTCPriceTolerance); err != nil {
		return p, err
	}
	p.HedgeTimeThreshold = c.Strategy.HedgeTimeThreshold
	p.AuctionTime = c.Strategy.AuctionTime
	p.TwapPeriod = c.Strategy.TwapPeriod
	p.DomainName = c.Strategy.DomainName
	p.DomainVersion = c.Strategy.DomainVersion
	p.ChainID = new(big.Int).SetUint64(c.Strategy.ChainID)
	p.ShareSymbol = c.Strategy.ShareSymbol
	return p, nil
}

// KeeperAddress returns the account credited by keeper-initiated venue
// hedges. It defaults to the strategy owner.
func (c *Config) KeeperAddress() (common.Address, error) {
	if strings.TrimSpace(c.Keeper.Address) == "" {
		if strings.TrimSpace(c.Strategy.Owner) == "" {
			return common.Address{}, nil
		}
		return parseAddress("strategy.Owner", c.Strategy.Owner)
	}
	return parseAddress("keeper.Address", c.Keeper.Address)
}

// VenueAddress returns the configured venue account, false when disabled.
func (c *Config) VenueAddress() (common.Address, bool, error) {
	if strings.TrimSpace(c.Venue.Address) == "" {
		return common.Address{}, false, nil
	}
	addr, err := parseAddress("venue.Address", c.Venue.Address)
	return addr, err == nil, err
}

func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

func (c *Config) TracingConfig(service string) powerotel.Config {
	return powerotel.Config{
		ServiceName: service,
		Environment: c.Environment,
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		Headers:     powerotel.ParseHeaders(c.Tracing.Headers),
		SampleRatio: c.Tracing.SampleRatio,
	}
}
