package controller

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/core/state"
	"powerperp/native/fixedpoint"
)

// LiquidationResult describes the outcome of a liquidation call. Saved is set
// when unwinding the vault's position restored safety and no debt was seized.
type LiquidationResult struct {
	VaultID            uint64
	DebtRepaid         *big.Int
	CollateralPaid     *big.Int
	SaveBounty         *big.Int
	PositionNative     *big.Int
	PositionDebtBurned *big.Int
	Saved              bool
}

func newLiquidationResult(id uint64) *LiquidationResult {
	return &LiquidationResult{
		VaultID:            id,
		DebtRepaid:         big.NewInt(0),
		CollateralPaid:     big.NewInt(0),
		SaveBounty:         big.NewInt(0),
		PositionNative:     big.NewInt(0),
		PositionDebtBurned: big.NewInt(0),
	}
}

// Liquidate repays up to requested raw debt of an unsafe vault on behalf of
// caller. An attached position is unwound into the vault first; if that
// alone restores safety net of the save bounty, the caller receives only the
// bounty. Otherwise the bounty stays in the vault and liquidation proceeds.
func (s *Session) Liquidate(ctx context.Context, caller common.Address, id uint64, requested *big.Int) (*LiquidationResult, error) {
	if err := s.c.guard(); err != nil {
		return nil, err
	}
	if requested == nil || requested.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	nf, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	vault, err := s.Vault(id)
	if err != nil {
		return nil, err
	}
	ok, err := s.safe(ctx, vault, nf)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("%w: vault %d", ErrVaultSafe, id)
	}

	result := newLiquidationResult(id)
	if vault.HasPosition {
		bounty, err := s.unwindPosition(ctx, vault, result)
		if err != nil {
			return nil, err
		}
		// The bounty is only owed if the vault is safe without it.
		check := *vault
		check.CollateralAmount = new(big.Int).Sub(vault.CollateralAmount, bounty)
		ok, err := s.safe(ctx, &check, nf)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := s.c.native.Transfer(s.tx, s.c.params.Address, caller, bounty); err != nil {
				return nil, err
			}
			vault.CollateralAmount = check.CollateralAmount
			result.SaveBounty = bounty
			result.Saved = true
			if err := s.tx.PutVault(vault); err != nil {
				return nil, err
			}
			return result, nil
		}
	}

	maxRepay, err := fixedpoint.Mul(vault.ShortAmount, s.c.params.CloseFactor)
	if err != nil {
		return nil, err
	}
	repay := fixedpoint.Min(requested, maxRepay)
	if repay.Sign() == 0 {
		return nil, fmt.Errorf("%w: vault %d", ErrNothingToLiquidate, id)
	}
	indexPrice, err := s.IndexPrice(ctx)
	if err != nil {
		return nil, err
	}
	debtValue, err := DebtValue(repay, nf, indexPrice)
	if err != nil {
		return nil, err
	}
	bonus, err := fixedpoint.Add(fixedpoint.One(), s.c.params.LiquidationBounty)
	if err != nil {
		return nil, err
	}
	payout, err := fixedpoint.Mul(debtValue, bonus)
	if err != nil {
		return nil, err
	}
	payout = fixedpoint.Min(payout, vault.CollateralAmount)

	if err := s.c.debt.Burn(s.tx, caller, repay); err != nil {
		return nil, err
	}
	if err := s.c.native.Transfer(s.tx, s.c.params.Address, caller, payout); err != nil {
		return nil, err
	}
	vault.ShortAmount = new(big.Int).Sub(vault.ShortAmount, repay)
	vault.CollateralAmount = new(big.Int).Sub(vault.CollateralAmount, payout)
	if err := s.tx.PutVault(vault); err != nil {
		return nil, err
	}
	result.DebtRepaid = repay
	result.CollateralPaid = payout
	return result, nil
}

// unwindPosition redeems the vault's position at the pool TWAP, burns the
// debt-token leg against the vault's short and books the native leg as
// collateral. Each leg is capped by what the vault escrowed; the unused
// escrow and any debt above the short go back to the owner. It returns the
// save bounty owed on the redeemed value without paying it.
func (s *Session) unwindPosition(ctx context.Context, vault *state.Vault, result *LiquidationResult) (*big.Int, error) {
	pos, err := PositionFromRecord(vault.Position)
	if err != nil {
		return nil, err
	}
	price, err := s.PoolPrice(ctx)
	if err != nil {
		return nil, err
	}
	native, debt, err := pos.Value(price)
	if err != nil {
		return nil, err
	}
	escrowNative, escrowDebt := vault.Position.EscrowNative, vault.Position.EscrowDebt
	native = fixedpoint.Min(native, escrowNative)
	debt = fixedpoint.Min(debt, escrowDebt)
	vault.HasPosition = false
	vault.Position = state.PositionRecord{}

	burn := fixedpoint.Min(debt, vault.ShortAmount)
	if burn.Sign() > 0 {
		if err := s.c.debt.Burn(s.tx, s.c.params.PositionCustody, burn); err != nil {
			return nil, err
		}
	}
	if native.Sign() > 0 {
		if err := s.c.native.Transfer(s.tx, s.c.params.PositionCustody, s.c.params.Address, native); err != nil {
			return nil, err
		}
	}
	refundNative := new(big.Int).Sub(escrowNative, native)
	refundDebt := new(big.Int).Sub(escrowDebt, burn)
	if err := s.releaseEscrow(vault.Owner, refundNative, refundDebt); err != nil {
		return nil, err
	}
	vault.ShortAmount = new(big.Int).Sub(vault.ShortAmount, burn)
	if vault.CollateralAmount, err = fixedpoint.Add(vault.CollateralAmount, native); err != nil {
		return nil, err
	}

	burnValue, err := fixedpoint.Mul(burn, price)
	if err != nil {
		return nil, err
	}
	unwound, err := fixedpoint.Add(native, burnValue)
	if err != nil {
		return nil, err
	}
	bounty, err := fixedpoint.Mul(unwound, s.c.params.SaveBounty)
	if err != nil {
		return nil, err
	}
	result.PositionNative = native
	result.PositionDebtBurned = burn
	return fixedpoint.Min(bounty, vault.CollateralAmount), nil
}

// Liquidatable previews the raw debt a liquidator could repay right now,
// using the factor a refresh would produce. Attached positions are ignored.
func (s *Session) Liquidatable(ctx context.Context, id uint64) (*big.Int, error) {
	vault, err := s.Vault(id)
	if err != nil {
		return nil, err
	}
	nf, err := s.c.funding.Expected(ctx, s.tx, s.now())
	if err != nil {
		return nil, err
	}
	ok, err := s.safe(ctx, vault, nf)
	if err != nil {
		return nil, err
	}
	if ok {
		return big.NewInt(0), nil
	}
	return fixedpoint.Mul(vault.ShortAmount, s.c.params.CloseFactor)
}
