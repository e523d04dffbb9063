package token

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"powerperp/core/state"
	pcommon "powerperp/native/common"
	"powerperp/native/fixedpoint"
)

const (
	DefaultNativeSymbol = "ETH"
	DefaultDebtSymbol   = "SQTH"
	DefaultShareSymbol  = "CRAB"
)

var (
	ErrInsufficientBalance   = pcommon.NewError(pcommon.ClassOrderValidation, "token: insufficient balance")
	ErrInsufficientAllowance = pcommon.NewError(pcommon.ClassOrderValidation, "token: insufficient allowance")
	ErrInvalidAmount         = pcommon.NewError(pcommon.ClassPrecondition, "token: amount must be positive")
)

// Ledger books balances and allowances of a single token inside a state
// transaction. Zero-amount movements are no-ops.
type Ledger struct {
	symbol string
}

func NewLedger(symbol string) *Ledger {
	return &Ledger{symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

func (l *Ledger) Symbol() string {
	if l == nil {
		return ""
	}
	return l.symbol
}

func (l *Ledger) BalanceOf(tx *state.Tx, addr common.Address) (*big.Int, error) {
	return tx.Balance(l.symbol, addr)
}

func (l *Ledger) Allowance(tx *state.Tx, owner, spender common.Address) (*big.Int, error) {
	return tx.Allowance(l.symbol, owner, spender)
}

func (l *Ledger) TotalSupply(tx *state.Tx) (*big.Int, error) {
	return tx.Supply(l.symbol)
}

// Approve sets the spender's allowance, replacing any previous value.
func (l *Ledger) Approve(tx *state.Tx, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := fixedpoint.Check(amount); err != nil {
		return err
	}
	return tx.SetAllowance(l.symbol, owner, spender, amount)
}

func (l *Ledger) Transfer(tx *state.Tx, from, to common.Address, amount *big.Int) error {
	if skip, err := checkAmount(amount); skip || err != nil {
		return err
	}
	if err := l.debit(tx, from, amount); err != nil {
		return err
	}
	return l.credit(tx, to, amount)
}

// TransferFrom moves funds on behalf of from and consumes the spender's
// allowance.
func (l *Ledger) TransferFrom(tx *state.Tx, spender, from, to common.Address, amount *big.Int) error {
	if skip, err := checkAmount(amount); skip || err != nil {
		return err
	}
	allowance, err := tx.Allowance(l.symbol, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowance %s < %s", ErrInsufficientAllowance, l.symbol, allowance, amount)
	}
	if err := tx.SetAllowance(l.symbol, from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return l.Transfer(tx, from, to, amount)
}

func (l *Ledger) Mint(tx *state.Tx, to common.Address, amount *big.Int) error {
	if skip, err := checkAmount(amount); skip || err != nil {
		return err
	}
	supply, err := tx.Supply(l.symbol)
	if err != nil {
		return err
	}
	next, err := fixedpoint.Add(supply, amount)
	if err != nil {
		return fmt.Errorf("token: mint %s: %w", l.symbol, err)
	}
	if err := tx.SetSupply(l.symbol, next); err != nil {
		return err
	}
	return l.credit(tx, to, amount)
}

func (l *Ledger) Burn(tx *state.Tx, from common.Address, amount *big.Int) error {
	if skip, err := checkAmount(amount); skip || err != nil {
		return err
	}
	if err := l.debit(tx, from, amount); err != nil {
		return err
	}
	supply, err := tx.Supply(l.symbol)
	if err != nil {
		return err
	}
	next, err := fixedpoint.Sub(supply, amount)
	if err != nil {
		return fmt.Errorf("token: burn %s: %w", l.symbol, err)
	}
	return tx.SetSupply(l.symbol, next)
}

func checkAmount(amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() == 0 {
		return true, nil
	}
	if amount.Sign() < 0 {
		return true, ErrInvalidAmount
	}
	return false, nil
}

func (l *Ledger) debit(tx *state.Tx, addr common.Address, amount *big.Int) error {
	balance, err := tx.Balance(l.symbol, addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s balance %s < %s", ErrInsufficientBalance, l.symbol, balance, amount)
	}
	return tx.SetBalance(l.symbol, addr, new(big.Int).Sub(balance, amount))
}

func (l *Ledger) credit(tx *state.Tx, addr common.Address, amount *big.Int) error {
	balance, err := tx.Balance(l.symbol, addr)
	if err != nil {
		return err
	}
	next, err := fixedpoint.Add(balance, amount)
	if err != nil {
		return fmt.Errorf("token: credit %s: %w", l.symbol, err)
	}
	return tx.SetBalance(l.symbol, addr, next)
}
