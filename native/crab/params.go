package crab

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/crypto"
	"powerperp/native/fixedpoint"
	"powerperp/native/token"
)

// Params tunes hedge triggers, the auction ramp and order matching. Decimal
// values are WAD.
type Params struct {
	// Address is the strategy account. It owns the strategy vault and is
	// the verifying contract of signed orders.
	Address common.Address
	// Owner is the only caller allowed to match signed orders.
	Owner common.Address

	HedgeTimeThreshold  uint64
	HedgePriceThreshold *big.Int
	AuctionTime         uint64
	TwapPeriod          uint64

	MinPriceMultiplier *big.Int
	MaxPriceMultiplier *big.Int
	OTCPriceTolerance  *big.Int

	DomainName    string
	DomainVersion string
	ChainID       *big.Int

	ShareSymbol string
}

func DefaultParams() Params {
	return Params{
		Address:             common.HexToAddress("0x0000000000000000000000000000000000c0a7e3"),
		HedgeTimeThreshold:  86_400,
		HedgePriceThreshold: fixedpoint.MustParse("0.1"),
		AuctionTime:         3_600,
		TwapPeriod:          420,
		MinPriceMultiplier:  fixedpoint.MustParse("0.95"),
		MaxPriceMultiplier:  fixedpoint.MustParse("1.05"),
		OTCPriceTolerance:   fixedpoint.MustParse("0.05"),
		DomainName:          "CrabOTC",
		DomainVersion:       "2",
		ChainID:             big.NewInt(1),
		ShareSymbol:         token.DefaultShareSymbol,
	}
}

func (p Params) Validate() error {
	if p.Address == (common.Address{}) {
		return fmt.Errorf("crab: strategy address required")
	}
	if p.HedgeTimeThreshold == 0 {
		return fmt.Errorf("crab: hedge time threshold must be positive")
	}
	if p.HedgePriceThreshold == nil || p.HedgePriceThreshold.Sign() <= 0 {
		return fmt.Errorf("crab: hedge price threshold must be positive")
	}
	if p.AuctionTime == 0 {
		return fmt.Errorf("crab: auction time must be positive")
	}
	if p.MinPriceMultiplier == nil || p.MaxPriceMultiplier == nil {
		return fmt.Errorf("crab: price multipliers required")
	}
	if p.MinPriceMultiplier.Sign() <= 0 || p.MinPriceMultiplier.Cmp(fixedpoint.One()) > 0 {
		return fmt.Errorf("crab: min price multiplier must be in (0, 1]")
	}
	if p.MaxPriceMultiplier.Cmp(fixedpoint.One()) < 0 {
		return fmt.Errorf("crab: max price multiplier must be at least 1")
	}
	if p.OTCPriceTolerance == nil || p.OTCPriceTolerance.Sign() < 0 || p.OTCPriceTolerance.Cmp(fixedpoint.One()) >= 0 {
		return fmt.Errorf("crab: otc price tolerance must be in [0, 1)")
	}
	if strings.TrimSpace(p.DomainName) == "" || strings.TrimSpace(p.DomainVersion) == "" {
		return fmt.Errorf("crab: order domain name and version required")
	}
	if strings.TrimSpace(p.ShareSymbol) == "" {
		return fmt.Errorf("crab: share symbol required")
	}
	return nil
}

// Domain returns the typed-data domain signed orders are bound to.
func (p Params) Domain() crypto.Domain {
	return crypto.Domain{
		Name:              p.DomainName,
		Version:           p.DomainVersion,
		ChainID:           p.ChainID,
		VerifyingContract: p.Address,
	}
}
