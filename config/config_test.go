package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/native/fixedpoint"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "powerperp.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file to be written: %v", err)
	}
	if cfg.Storage.Backend != "leveldb" || cfg.Metrics.ListenAddress != ":9464" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Controller.MinCollateralRatio != "1.5" || len(again.Oracle.Prices) != 2 {
		t.Fatalf("default file did not round trip: %+v", again)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	path := writeConfig(t, "powerperp.toml", `Environment = "test"

[controller]
MinCollateralRatio = "2"
MinCollateral = "6.9"
CloseFactor = "0.25"
IndexScale = 1000

[funding]
Period = 3600

[strategy]
Owner = "0x00000000000000000000000000000000000000aa"
HedgePriceThreshold = "0.2"
ChainID = 5

[[oracle.Prices]]
Pool = "eth-usd"
Base = "ETH"
Quote = "USD"
Price = "2500.5"

[storage]
Backend = "BOLT"
Path = "state.bolt"

[pauses]
Strategy = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "test" || cfg.Storage.Backend != "bolt" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	ctrl, err := cfg.ControllerParams()
	if err != nil {
		t.Fatalf("controller params: %v", err)
	}
	if ctrl.MinCollateralRatio.Cmp(fixedpoint.MustParse("2")) != 0 {
		t.Fatalf("unexpected ratio %s", ctrl.MinCollateralRatio)
	}
	if ctrl.MinCollateral.Cmp(fixedpoint.MustParse("6.9")) != 0 {
		t.Fatalf("unexpected dust floor %s", ctrl.MinCollateral)
	}
	if ctrl.CloseFactor.Cmp(fixedpoint.MustParse("0.25")) != 0 || ctrl.IndexScale != 1000 {
		t.Fatalf("unexpected controller params: %+v", ctrl)
	}
	if ctrl.LiquidationBounty.Cmp(fixedpoint.MustParse("0.1")) != 0 {
		t.Fatalf("expected default bounty, got %s", ctrl.LiquidationBounty)
	}

	fund := cfg.FundingParams()
	if fund.Period != 3600 || fund.TwapPeriod != 420 || fund.IndexScale != 1000 {
		t.Fatalf("unexpected funding params: %+v", fund)
	}

	strat, err := cfg.StrategyParams()
	if err != nil {
		t.Fatalf("strategy params: %v", err)
	}
	if strat.Owner != common.HexToAddress("0xaa") || strat.ChainID.Uint64() != 5 {
		t.Fatalf("unexpected strategy params: %+v", strat)
	}
	if strat.HedgePriceThreshold.Cmp(fixedpoint.MustParse("0.2")) != 0 {
		t.Fatalf("unexpected threshold %s", strat.HedgePriceThreshold)
	}

	_, prices, err := cfg.SeedPrices()
	if err != nil || len(prices) != 1 || prices[0].Cmp(fixedpoint.MustParse("2500.5")) != 0 {
		t.Fatalf("unexpected seed prices %v (err %v)", prices, err)
	}

	modules := cfg.Pauses.Modules()
	if modules["controller"] || !modules["crab"] {
		t.Fatalf("unexpected pauses: %v", modules)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, "powerperp.yaml", `environment: staging
controller:
  liquidation_bounty: "0.05"
strategy:
  auction_time: 1800
  otc_price_tolerance: "0.01"
venue:
  address: "0x00000000000000000000000000000000000000bb"
  fee_bps: 30
logging:
  level: debug
  file: /tmp/powerperp.log
  max_size_mb: 10
tracing:
  endpoint: collector:4318
  headers: "x-token=abc"
  sample_ratio: 0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctrl, err := cfg.ControllerParams()
	if err != nil {
		t.Fatalf("controller params: %v", err)
	}
	if ctrl.LiquidationBounty.Cmp(fixedpoint.MustParse("0.05")) != 0 {
		t.Fatalf("unexpected bounty %s", ctrl.LiquidationBounty)
	}
	strat, err := cfg.StrategyParams()
	if err != nil {
		t.Fatalf("strategy params: %v", err)
	}
	if strat.AuctionTime != 1800 || strat.OTCPriceTolerance.Cmp(fixedpoint.MustParse("0.01")) != 0 {
		t.Fatalf("unexpected strategy params: %+v", strat)
	}
	venue, ok, err := cfg.VenueAddress()
	if err != nil || !ok || venue != common.HexToAddress("0xbb") {
		t.Fatalf("unexpected venue %s ok=%v err=%v", venue.Hex(), ok, err)
	}
	if cfg.Storage.Backend != "mem" {
		t.Fatalf("expected mem backend default, got %q", cfg.Storage.Backend)
	}
	opts := cfg.LoggingOptions()
	if opts.Level != "debug" || opts.File != "/tmp/powerperp.log" || opts.MaxSizeMB != 10 {
		t.Fatalf("unexpected logging options: %+v", opts)
	}
	tracing := cfg.TracingConfig("powerperpd")
	if tracing.ServiceName != "powerperpd" || tracing.Environment != "staging" || tracing.Headers["x-token"] != "abc" {
		t.Fatalf("unexpected tracing config: %+v", tracing)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "powerperp.toml", `[controller]
MinCollateralRatio = "1.5"
Typo = 1
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}

	yamlPath := writeConfig(t, "powerperp.yml", "controller:\n  typo: 1\n")
	if _, err := Load(yamlPath); err == nil {
		t.Fatalf("expected yaml unknown field error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ratio below one", func(c *Config) { c.Controller.MinCollateralRatio = "0.9" }, "min collateral ratio"},
		{"bad decimal", func(c *Config) { c.Controller.SaveBounty = "abc" }, "SaveBounty"},
		{"bad address", func(c *Config) { c.Strategy.Address = "nope" }, "strategy.Address"},
		{"address collision", func(c *Config) { c.Strategy.Address = c.Controller.Address }, "collides"},
		{"share symbol collision", func(c *Config) { c.Strategy.ShareSymbol = "eth" }, "share symbol"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "unknown storage backend"},
		{"missing path", func(c *Config) { c.Storage.Path = "" }, "storage.Path"},
		{"venue fee", func(c *Config) { c.Venue.FeeBps = MaxFeeBps }, "venue.FeeBps"},
		{"zero seed price", func(c *Config) { c.Oracle.Prices[0].Price = "0" }, "price must be positive"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "SampleRatio"},
		{"multiplier", func(c *Config) { c.Strategy.MaxPriceMultiplier = "0.5" }, "max price multiplier"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
