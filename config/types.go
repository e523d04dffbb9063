package config

// Controller mirrors controller.Params. Ratios and amounts are decimal
// strings ("1.5", "0.02") parsed into WAD values.
type Controller struct {
	Address            string `toml:"Address" yaml:"address"`
	PositionCustody    string `toml:"PositionCustody" yaml:"position_custody"`
	MinCollateralRatio string `toml:"MinCollateralRatio" yaml:"min_collateral_ratio"`
	MinCollateral      string `toml:"MinCollateral" yaml:"min_collateral"`
	LiquidationBounty  string `toml:"LiquidationBounty" yaml:"liquidation_bounty"`
	CloseFactor        string `toml:"CloseFactor" yaml:"close_factor"`
	SaveBounty         string `toml:"SaveBounty" yaml:"save_bounty"`
	IndexScale         uint64 `toml:"IndexScale" yaml:"index_scale"`
	TwapPeriod         uint64 `toml:"TwapPeriod" yaml:"twap_period"`
}

// Funding sets the normalization factor cadence.
type Funding struct {
	Period     uint64 `toml:"Period" yaml:"period"`
	TwapPeriod uint64 `toml:"TwapPeriod" yaml:"twap_period"`
}

// Price seeds an oracle pair at startup.
type Price struct {
	Pool  string `toml:"Pool" yaml:"pool"`
	Base  string `toml:"Base" yaml:"base"`
	Quote string `toml:"Quote" yaml:"quote"`
	Price string `toml:"Price" yaml:"price"`
}

// Oracle names the pools and assets the engines price against.
type Oracle struct {
	EthQuotePool  string  `toml:"EthQuotePool" yaml:"eth_quote_pool"`
	PowerPerpPool string  `toml:"PowerPerpPool" yaml:"power_perp_pool"`
	NativeSymbol  string  `toml:"NativeSymbol" yaml:"native_symbol"`
	QuoteSymbol   string  `toml:"QuoteSymbol" yaml:"quote_symbol"`
	DebtSymbol    string  `toml:"DebtSymbol" yaml:"debt_symbol"`
	SampleCap     int     `toml:"SampleCap" yaml:"sample_cap"`
	Prices        []Price `toml:"Prices" yaml:"prices"`
}

// Strategy mirrors crab.Params.
type Strategy struct {
	Address             string `toml:"Address" yaml:"address"`
	Owner               string `toml:"Owner" yaml:"owner"`
	HedgeTimeThreshold  uint64 `toml:"HedgeTimeThreshold" yaml:"hedge_time_threshold"`
	HedgePriceThreshold string `toml:"HedgePriceThreshold" yaml:"hedge_price_threshold"`
	AuctionTime         uint64 `toml:"AuctionTime" yaml:"auction_time"`
	TwapPeriod          uint64 `toml:"TwapPeriod" yaml:"twap_period"`
	MinPriceMultiplier  string `toml:"MinPriceMultiplier" yaml:"min_price_multiplier"`
	MaxPriceMultiplier  string `toml:"MaxPriceMultiplier" yaml:"max_price_multiplier"`
	OTCPriceTolerance   string `toml:"OTCPriceTolerance" yaml:"otc_price_tolerance"`
	DomainName          string `toml:"DomainName" yaml:"domain_name"`
	DomainVersion       string `toml:"DomainVersion" yaml:"domain_version"`
	ChainID             uint64 `toml:"ChainID" yaml:"chain_id"`
	ShareSymbol         string `toml:"ShareSymbol" yaml:"share_symbol"`
}

// Venue configures the oracle-priced swap venue used by venue hedges.
// Leaving Address empty disables it.
type Venue struct {
	Address string `toml:"Address" yaml:"address"`
	FeeBps  uint64 `toml:"FeeBps" yaml:"fee_bps"`
}

// Keeper drives periodic funding refreshes and hedge checks. A zero
// interval disables the loop.
type Keeper struct {
	IntervalSeconds uint64 `toml:"IntervalSeconds" yaml:"interval_seconds"`
	Address         string `toml:"Address" yaml:"address"`
}

type Storage struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

type Metrics struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen"`
}

// Tracing enables OTLP/HTTP span export when Endpoint is set.
type Tracing struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}

// Pauses halts state-changing operations per module.
type Pauses struct {
	Controller bool `toml:"Controller" yaml:"controller"`
	Strategy   bool `toml:"Strategy" yaml:"strategy"`
}

// Modules returns the pause flags keyed by engine module name.
func (p Pauses) Modules() map[string]bool {
	return map[string]bool{
		"controller": p.Controller,
		"crab":       p.Strategy,
	}
}
