package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PositionRecord is the persisted form of a liquidity position attached to a
// vault. Kind selects the variant; unused fields are zero. EscrowNative and
// EscrowDebt are the token amounts held in position custody for the vault.
type PositionRecord struct {
	Kind           uint8
	Liquidity      *big.Int
	SqrtPriceLower *big.Int
	SqrtPriceUpper *big.Int
	Native         *big.Int
	Debt           *big.Int
	EscrowNative   *big.Int
	EscrowDebt     *big.Int
}

// Vault is a collateral/debt pair. ShortAmount is held in raw debt units,
// before the normalization factor is applied.
type Vault struct {
	ID               uint64
	Owner            common.Address
	Operator         common.Address
	CollateralAmount *big.Int
	ShortAmount      *big.Int
	HasPosition      bool
	Position         PositionRecord
}

// NormalizationFactor converts raw debt units into value-equivalent debt.
type NormalizationFactor struct {
	Value      *big.Int
	LastUpdate uint64
}

// StrategyState tracks the vault and last hedge of a delta-neutral strategy.
type StrategyState struct {
	VaultID          uint64
	Initialized      bool
	TimeAtLastHedge  uint64
	PriceAtLastHedge *big.Int
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func (p *PositionRecord) normalize() {
	p.Liquidity = nonNil(p.Liquidity)
	p.SqrtPriceLower = nonNil(p.SqrtPriceLower)
	p.SqrtPriceUpper = nonNil(p.SqrtPriceUpper)
	p.Native = nonNil(p.Native)
	p.Debt = nonNil(p.Debt)
	p.EscrowNative = nonNil(p.EscrowNative)
	p.EscrowDebt = nonNil(p.EscrowDebt)
}

func (v *Vault) normalize() {
	v.CollateralAmount = nonNil(v.CollateralAmount)
	v.ShortAmount = nonNil(v.ShortAmount)
	v.Position.normalize()
}

// Copy returns a deep copy of the vault.
func (v *Vault) Copy() *Vault {
	if v == nil {
		return nil
	}
	out := *v
	out.CollateralAmount = new(big.Int).Set(nonNil(v.CollateralAmount))
	out.ShortAmount = new(big.Int).Set(nonNil(v.ShortAmount))
	out.Position = PositionRecord{
		Kind:           v.Position.Kind,
		Liquidity:      new(big.Int).Set(nonNil(v.Position.Liquidity)),
		SqrtPriceLower: new(big.Int).Set(nonNil(v.Position.SqrtPriceLower)),
		SqrtPriceUpper: new(big.Int).Set(nonNil(v.Position.SqrtPriceUpper)),
		Native:         new(big.Int).Set(nonNil(v.Position.Native)),
		Debt:           new(big.Int).Set(nonNil(v.Position.Debt)),
		EscrowNative:   new(big.Int).Set(nonNil(v.Position.EscrowNative)),
		EscrowDebt:     new(big.Int).Set(nonNil(v.Position.EscrowDebt)),
	}
	return &out
}

// Vault loads the vault with the given identifier.
func (tx *Tx) Vault(id uint64) (*Vault, bool, error) {
	var v Vault
	ok, err := tx.KVGet(vaultKey(id), &v)
	if err != nil || !ok {
		return nil, ok, err
	}
	v.normalize()
	return &v, true, nil
}

// PutVault persists the vault under its identifier.
func (tx *Tx) PutVault(v *Vault) error {
	if v == nil {
		return fmt.Errorf("state: nil vault")
	}
	if v.ID == 0 {
		return fmt.Errorf("state: vault id must be non-zero")
	}
	record := v.Copy()
	record.normalize()
	return tx.KVPut(vaultKey(v.ID), record)
}

// NextVaultID allocates a fresh vault identifier. Identifiers start at 1.
func (tx *Tx) NextVaultID() (uint64, error) {
	var next uint64
	if _, err := tx.KVGet(nextVaultIDKey, &next); err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	if err := tx.KVPut(nextVaultIDKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// NormalizationFactor returns the stored factor. The boolean is false before
// the first funding refresh.
func (tx *Tx) NormalizationFactor() (*NormalizationFactor, bool, error) {
	var nf NormalizationFactor
	ok, err := tx.KVGet(normFactorKey, &nf)
	if err != nil || !ok {
		return nil, ok, err
	}
	nf.Value = nonNil(nf.Value)
	return &nf, true, nil
}

func (tx *Tx) PutNormalizationFactor(nf *NormalizationFactor) error {
	if nf == nil || nf.Value == nil || nf.Value.Sign() < 0 {
		return fmt.Errorf("state: invalid normalization factor")
	}
	return tx.KVPut(normFactorKey, nf)
}

func (tx *Tx) StrategyState(addr common.Address) (*StrategyState, bool, error) {
	var s StrategyState
	ok, err := tx.KVGet(strategyKey(addr), &s)
	if err != nil || !ok {
		return nil, ok, err
	}
	s.PriceAtLastHedge = nonNil(s.PriceAtLastHedge)
	return &s, true, nil
}

func (tx *Tx) PutStrategyState(addr common.Address, s *StrategyState) error {
	if s == nil {
		return fmt.Errorf("state: nil strategy state")
	}
	record := *s
	record.PriceAtLastHedge = nonNil(s.PriceAtLastHedge)
	return tx.KVPut(strategyKey(addr), &record)
}

func (tx *Tx) getAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := tx.KVGet(key, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (tx *Tx) putAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return tx.KVDelete(key)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative amount")
	}
	return tx.KVPut(key, amount)
}

// Balance returns the token balance of addr, zero when unset.
func (tx *Tx) Balance(symbol string, addr common.Address) (*big.Int, error) {
	return tx.getAmount(balanceKey(symbol, addr))
}

func (tx *Tx) SetBalance(symbol string, addr common.Address, amount *big.Int) error {
	return tx.putAmount(balanceKey(symbol, addr), amount)
}

func (tx *Tx) Allowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	return tx.getAmount(allowanceKey(symbol, owner, spender))
}

func (tx *Tx) SetAllowance(symbol string, owner, spender common.Address, amount *big.Int) error {
	return tx.putAmount(allowanceKey(symbol, owner, spender), amount)
}

// Supply returns the total minted amount of a token.
func (tx *Tx) Supply(symbol string) (*big.Int, error) {
	return tx.getAmount(supplyKey(symbol))
}

func (tx *Tx) SetSupply(symbol string, amount *big.Int) error {
	return tx.putAmount(supplyKey(symbol), amount)
}

// OrderNonceUsed reports whether the trader's nonce has already been consumed
// by the strategy.
func (tx *Tx) OrderNonceUsed(strategy, trader common.Address, nonce *big.Int) (bool, error) {
	return tx.KVGet(orderNonceKey(strategy, trader, nonNil(nonce)), nil)
}

func (tx *Tx) MarkOrderNonceUsed(strategy, trader common.Address, nonce *big.Int) error {
	return tx.KVPut(orderNonceKey(strategy, trader, nonNil(nonce)), true)
}
