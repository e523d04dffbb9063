package controller

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/native/fixedpoint"
)

// Params configures vault solvency and liquidation incentives. Ratios are
// WAD values (1.5 == 1.5e18).
type Params struct {
	// Address is the custody account holding all vault collateral.
	Address         common.Address
	// PositionCustody holds the tokens backing attached liquidity positions.
	PositionCustody common.Address

	MinCollateralRatio *big.Int
	// MinCollateral is the dust floor for vaults with debt. Zero disables it.
	MinCollateral     *big.Int
	LiquidationBounty *big.Int
	CloseFactor       *big.Int
	SaveBounty        *big.Int

	IndexScale uint64
	TwapPeriod uint64

	NativeSymbol  string
	DebtSymbol    string
	PowerPerpPool string
}

func DefaultParams() Params {
	return Params{
		Address:            common.HexToAddress("0x0000000000000000000000000000000000c0a7e1"),
		PositionCustody:    common.HexToAddress("0x0000000000000000000000000000000000c0a7e2"),
		MinCollateralRatio: fixedpoint.MustParse("1.5"),
		MinCollateral:      big.NewInt(0),
		LiquidationBounty:  fixedpoint.MustParse("0.1"),
		CloseFactor:        fixedpoint.MustParse("0.5"),
		SaveBounty:         fixedpoint.MustParse("0.02"),
		IndexScale:         10_000,
		TwapPeriod:         420,
		NativeSymbol:       "ETH",
		DebtSymbol:         "SQTH",
		PowerPerpPool:      "sqth-eth",
	}
}

func (p Params) Validate() error {
	if p.Address == (common.Address{}) {
		return fmt.Errorf("controller: custody address required")
	}
	if p.MinCollateralRatio == nil || p.MinCollateralRatio.Cmp(fixedpoint.One()) < 0 {
		return fmt.Errorf("controller: min collateral ratio must be at least 1")
	}
	if p.CloseFactor == nil || p.CloseFactor.Sign() <= 0 || p.CloseFactor.Cmp(fixedpoint.One()) > 0 {
		return fmt.Errorf("controller: close factor must be in (0, 1]")
	}
	for name, v := range map[string]*big.Int{
		"liquidation bounty": p.LiquidationBounty,
		"save bounty":        p.SaveBounty,
	} {
		if v == nil || v.Sign() < 0 || v.Cmp(fixedpoint.One()) >= 0 {
			return fmt.Errorf("controller: %s must be in [0, 1)", name)
		}
	}
	if p.MinCollateral != nil && p.MinCollateral.Sign() < 0 {
		return fmt.Errorf("controller: min collateral must not be negative")
	}
	if p.IndexScale == 0 {
		return fmt.Errorf("controller: index scale must be positive")
	}
	if strings.TrimSpace(p.NativeSymbol) == "" || strings.TrimSpace(p.DebtSymbol) == "" {
		return fmt.Errorf("controller: token symbols required")
	}
	if strings.TrimSpace(p.PowerPerpPool) == "" {
		return fmt.Errorf("controller: power perp pool required")
	}
	return nil
}
