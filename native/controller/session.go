package controller

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/core/state"
	"powerperp/native/fixedpoint"
)

// Session runs controller operations inside a caller-owned state transaction.
// Nothing it does is visible until the surrounding Update commits.
type Session struct {
	c  *Controller
	tx *state.Tx
}

// Tx exposes the underlying transaction.
func (s *Session) Tx() *state.Tx { return s.tx }

func (s *Session) now() uint64 {
	return uint64(s.c.now().Unix())
}

// Open creates an empty vault owned by caller.
func (s *Session) Open(caller common.Address) (uint64, error) {
	if err := s.c.guard(); err != nil {
		return 0, err
	}
	id, err := s.tx.NextVaultID()
	if err != nil {
		return 0, err
	}
	vault := &state.Vault{ID: id, Owner: caller, CollateralAmount: big.NewInt(0), ShortAmount: big.NewInt(0)}
	if err := s.tx.PutVault(vault); err != nil {
		return 0, err
	}
	return id, nil
}

// Vault loads a vault or fails with ErrVaultNotFound.
func (s *Session) Vault(id uint64) (*state.Vault, error) {
	vault, ok, err := s.tx.Vault(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrVaultNotFound, id)
	}
	return vault, nil
}

// authorized is the single access-control predicate for vault mutations.
func authorized(vault *state.Vault, caller common.Address) bool {
	if caller == (common.Address{}) {
		return false
	}
	return caller == vault.Owner || (vault.Operator != (common.Address{}) && caller == vault.Operator)
}

func (s *Session) authorizedVault(id uint64, caller common.Address) (*state.Vault, error) {
	vault, err := s.Vault(id)
	if err != nil {
		return nil, err
	}
	if !authorized(vault, caller) {
		return nil, fmt.Errorf("%w: %s on vault %d", ErrNotAuthorized, caller.Hex(), id)
	}
	return vault, nil
}

// Refresh brings the normalization factor up to the current time and returns
// its value.
func (s *Session) Refresh(ctx context.Context) (*big.Int, error) {
	nf, err := s.c.funding.Refresh(ctx, s.tx, s.now())
	if err != nil {
		return nil, err
	}
	return nf.Value, nil
}

// NormalizationFactor returns the stored factor without refreshing it.
func (s *Session) NormalizationFactor() (*big.Int, error) {
	nf, err := s.c.funding.Current(s.tx)
	if err != nil {
		return nil, err
	}
	return nf.Value, nil
}

// IndexPrice is the native value of one normalized debt unit,
// ethQuoteTwap/indexScale.
func (s *Session) IndexPrice(ctx context.Context) (*big.Int, error) {
	ethQuote, err := s.c.funding.EthQuoteTwap(ctx, s.c.params.TwapPeriod)
	if err != nil {
		return nil, err
	}
	price, err := fixedpoint.MulDiv(ethQuote, big.NewInt(1), new(big.Int).SetUint64(s.c.params.IndexScale))
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, fmt.Errorf("controller: index price rounds to zero")
	}
	return price, nil
}

// PoolPrice is the debt token TWAP in native units from its own trading pool.
func (s *Session) PoolPrice(ctx context.Context) (*big.Int, error) {
	p := s.c.params
	price, err := s.c.oracle.GetTwap(ctx, p.PowerPerpPool, p.DebtSymbol, p.NativeSymbol, p.TwapPeriod)
	if err != nil {
		return nil, fmt.Errorf("controller: pool twap: %w", err)
	}
	return price, nil
}

// DebtValue converts raw debt into native units: short * nf * indexPrice.
func DebtValue(short, nf, indexPrice *big.Int) (*big.Int, error) {
	normalized, err := fixedpoint.Mul(short, nf)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Mul(normalized, indexPrice)
}

// safe evaluates collateral >= short*nf*indexPrice*minCR. A vault without
// debt is safe without consulting the oracle.
func (s *Session) safe(ctx context.Context, vault *state.Vault, nf *big.Int) (bool, error) {
	if vault.ShortAmount.Sign() == 0 {
		return true, nil
	}
	indexPrice, err := s.IndexPrice(ctx)
	if err != nil {
		return false, err
	}
	debtValue, err := DebtValue(vault.ShortAmount, nf, indexPrice)
	if err != nil {
		return false, err
	}
	required, err := fixedpoint.Mul(debtValue, s.c.params.MinCollateralRatio)
	if err != nil {
		return false, err
	}
	return vault.CollateralAmount.Cmp(required) >= 0, nil
}

func (s *Session) checkVault(ctx context.Context, vault *state.Vault, nf *big.Int) error {
	ok, err := s.safe(ctx, vault, nf)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: vault %d", ErrInsufficientCollateral, vault.ID)
	}
	floor := s.c.params.MinCollateral
	if vault.ShortAmount.Sign() > 0 && floor != nil && floor.Sign() > 0 && vault.CollateralAmount.Cmp(floor) < 0 {
		return fmt.Errorf("%w: vault %d", ErrBelowMinCollateral, vault.ID)
	}
	return nil
}

// IsSafe uses the stored normalization factor and a fresh index TWAP.
func (s *Session) IsSafe(ctx context.Context, id uint64) (bool, error) {
	vault, err := s.Vault(id)
	if err != nil {
		return false, err
	}
	nf, err := s.NormalizationFactor()
	if err != nil {
		return false, err
	}
	return s.safe(ctx, vault, nf)
}

// Mint adds collateral from the caller and mints raw debt tokens to the caller.
func (s *Session) Mint(ctx context.Context, caller common.Address, id uint64, rawDebt, collateral *big.Int) error {
	if err := s.c.guard(); err != nil {
		return err
	}
	rawDebt, collateral = copyOrZero(rawDebt), copyOrZero(collateral)
	if rawDebt.Sign() < 0 || collateral.Sign() < 0 || (rawDebt.Sign() == 0 && collateral.Sign() == 0) {
		return ErrInvalidAmount
	}
	nf, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	vault, err := s.authorizedVault(id, caller)
	if err != nil {
		return err
	}
	if err := s.c.native.Transfer(s.tx, caller, s.c.params.Address, collateral); err != nil {
		return err
	}
	if vault.CollateralAmount, err = fixedpoint.Add(vault.CollateralAmount, collateral); err != nil {
		return err
	}
	if vault.ShortAmount, err = fixedpoint.Add(vault.ShortAmount, rawDebt); err != nil {
		return err
	}
	if err := s.c.debt.Mint(s.tx, caller, rawDebt); err != nil {
		return err
	}
	if err := s.checkVault(ctx, vault, nf); err != nil {
		return err
	}
	return s.tx.PutVault(vault)
}

// Burn destroys the caller's debt tokens against the vault and releases
// collateral to the caller.
func (s *Session) Burn(ctx context.Context, caller common.Address, id uint64, rawDebt, collateral *big.Int) error {
	if err := s.c.guard(); err != nil {
		return err
	}
	rawDebt, collateral = copyOrZero(rawDebt), copyOrZero(collateral)
	if rawDebt.Sign() < 0 || collateral.Sign() < 0 || (rawDebt.Sign() == 0 && collateral.Sign() == 0) {
		return ErrInvalidAmount
	}
	nf, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	vault, err := s.authorizedVault(id, caller)
	if err != nil {
		return err
	}
	if vault.ShortAmount.Cmp(rawDebt) < 0 {
		return fmt.Errorf("%w: burn %s of %s", ErrDebtUnderflow, fixedpoint.Format(rawDebt), fixedpoint.Format(vault.ShortAmount))
	}
	if vault.CollateralAmount.Cmp(collateral) < 0 {
		return fmt.Errorf("%w: withdraw %s of %s", ErrCollateralUnderflow, fixedpoint.Format(collateral), fixedpoint.Format(vault.CollateralAmount))
	}
	if err := s.c.debt.Burn(s.tx, caller, rawDebt); err != nil {
		return err
	}
	vault.ShortAmount = new(big.Int).Sub(vault.ShortAmount, rawDebt)
	vault.CollateralAmount = new(big.Int).Sub(vault.CollateralAmount, collateral)
	if err := s.c.native.Transfer(s.tx, s.c.params.Address, caller, collateral); err != nil {
		return err
	}
	if err := s.checkVault(ctx, vault, nf); err != nil {
		return err
	}
	return s.tx.PutVault(vault)
}

// Deposit tops up collateral. Anyone may deposit into any vault.
func (s *Session) Deposit(ctx context.Context, caller common.Address, id uint64, collateral *big.Int) error {
	if err := s.c.guard(); err != nil {
		return err
	}
	if collateral == nil || collateral.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := s.Refresh(ctx); err != nil {
		return err
	}
	vault, err := s.Vault(id)
	if err != nil {
		return err
	}
	if err := s.c.native.Transfer(s.tx, caller, s.c.params.Address, collateral); err != nil {
		return err
	}
	if vault.CollateralAmount, err = fixedpoint.Add(vault.CollateralAmount, collateral); err != nil {
		return err
	}
	return s.tx.PutVault(vault)
}

// DepositPosition attaches pos to the vault. A vault holds at most one. The
// position's tokens, valued at the pool TWAP, move from caller into position
// custody until it is withdrawn or unwound.
func (s *Session) DepositPosition(ctx context.Context, caller common.Address, id uint64, pos Position) error {
	if err := s.c.guard(); err != nil {
		return err
	}
	if pos == nil {
		return ErrInvalidPosition
	}
	vault, err := s.authorizedVault(id, caller)
	if err != nil {
		return err
	}
	if vault.HasPosition {
		return fmt.Errorf("%w: vault %d", ErrPositionAttached, id)
	}
	record := pos.Record()
	if _, err := PositionFromRecord(record); err != nil {
		return err
	}
	price, err := s.PoolPrice(ctx)
	if err != nil {
		return err
	}
	native, debt, err := pos.Value(price)
	if err != nil {
		return err
	}
	if native.Sign() == 0 && debt.Sign() == 0 {
		return fmt.Errorf("%w: position holds no tokens", ErrInvalidPosition)
	}
	custody := s.c.params.PositionCustody
	if native.Sign() > 0 {
		if err := s.c.native.Transfer(s.tx, caller, custody, native); err != nil {
			return err
		}
	}
	if debt.Sign() > 0 {
		if err := s.c.debt.Transfer(s.tx, caller, custody, debt); err != nil {
			return err
		}
	}
	record.EscrowNative = native
	record.EscrowDebt = debt
	vault.HasPosition = true
	vault.Position = record
	return s.tx.PutVault(vault)
}

// WithdrawPosition detaches the vault's position and returns its escrowed
// tokens to the vault owner. The vault must remain safe.
func (s *Session) WithdrawPosition(ctx context.Context, caller common.Address, id uint64) (Position, error) {
	if err := s.c.guard(); err != nil {
		return nil, err
	}
	nf, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	vault, err := s.authorizedVault(id, caller)
	if err != nil {
		return nil, err
	}
	if !vault.HasPosition {
		return nil, fmt.Errorf("%w: vault %d", ErrNoPosition, id)
	}
	pos, err := PositionFromRecord(vault.Position)
	if err != nil {
		return nil, err
	}
	if err := s.releaseEscrow(vault.Owner, vault.Position.EscrowNative, vault.Position.EscrowDebt); err != nil {
		return nil, err
	}
	vault.HasPosition = false
	vault.Position = state.PositionRecord{}
	if err := s.checkVault(ctx, vault, nf); err != nil {
		return nil, err
	}
	if err := s.tx.PutVault(vault); err != nil {
		return nil, err
	}
	return pos, nil
}

// releaseEscrow pays custody-held position tokens to the given account.
func (s *Session) releaseEscrow(to common.Address, native, debt *big.Int) error {
	custody := s.c.params.PositionCustody
	if native != nil && native.Sign() > 0 {
		if err := s.c.native.Transfer(s.tx, custody, to, native); err != nil {
			return err
		}
	}
	if debt != nil && debt.Sign() > 0 {
		if err := s.c.debt.Transfer(s.tx, custody, to, debt); err != nil {
			return err
		}
	}
	return nil
}

// SetOperator delegates vault management. Only the owner may call it; the
// zero address clears the delegation.
func (s *Session) SetOperator(caller common.Address, id uint64, operator common.Address) error {
	if err := s.c.guard(); err != nil {
		return err
	}
	vault, err := s.Vault(id)
	if err != nil {
		return err
	}
	if caller != vault.Owner {
		return fmt.Errorf("%w: only the owner may set an operator", ErrNotAuthorized)
	}
	vault.Operator = operator
	return s.tx.PutVault(vault)
}
