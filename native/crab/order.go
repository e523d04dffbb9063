package crab

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"powerperp/core/state"
	"powerperp/crypto"
)

const orderTypeName = "Order"

var orderFields = []apitypes.Type{
	{Name: "bidId", Type: "uint256"},
	{Name: "trader", Type: "address"},
	{Name: "quantity", Type: "uint256"},
	{Name: "price", Type: "uint256"},
	{Name: "isBuying", Type: "bool"},
	{Name: "expiry", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
}

// Order is a counter-party's signed offer to trade the debt token with the
// strategy. IsBuying is from the trader's side: a buying trader takes debt
// from a selling strategy.
type Order struct {
	BidID     *big.Int
	Trader    common.Address
	Quantity  *big.Int
	Price     *big.Int
	IsBuying  bool
	Expiry    uint64
	Nonce     *big.Int
	Signature []byte
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// OrderDigest returns the typed-data hash an order signature must cover.
func OrderDigest(domain crypto.Domain, order *Order) ([]byte, error) {
	message := apitypes.TypedDataMessage{
		"bidId":    decimal(order.BidID),
		"trader":   order.Trader.Hex(),
		"quantity": decimal(order.Quantity),
		"price":    decimal(order.Price),
		"isBuying": order.IsBuying,
		"expiry":   strconv.FormatUint(order.Expiry, 10),
		"nonce":    decimal(order.Nonce),
	}
	return crypto.HashTypedData(domain, orderTypeName, orderFields, message)
}

// SignOrder fills in order.Signature using key.
func SignOrder(domain crypto.Domain, order *Order, key *crypto.PrivateKey) error {
	digest, err := OrderDigest(domain, order)
	if err != nil {
		return err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return err
	}
	order.Signature = sig
	return nil
}

// verifyOrder checks the signature, expiry and nonce of an order and burns
// its nonce. side is the direction the strategy trades in.
func (s *Strategy) verifyOrder(tx *state.Tx, order *Order, side Direction, now uint64) error {
	if order == nil || order.Quantity == nil || order.Quantity.Sign() <= 0 || order.Price == nil || order.Price.Sign() <= 0 {
		return fmt.Errorf("%w: order must carry positive quantity and price", ErrInvalidAmount)
	}
	digest, err := OrderDigest(s.params.Domain(), order)
	if err != nil {
		return err
	}
	signer, err := s.verifier.Recover(digest, order.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != order.Trader {
		return fmt.Errorf("%w: signed by %s, not %s", ErrInvalidSignature, signer.Hex(), order.Trader.Hex())
	}
	if order.Expiry <= now {
		return fmt.Errorf("%w: expiry %d at %d", ErrOrderExpired, order.Expiry, now)
	}
	used, err := tx.OrderNonceUsed(s.params.Address, order.Trader, order.Nonce)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: trader %s nonce %s", ErrNonceReused, order.Trader.Hex(), decimal(order.Nonce))
	}
	if err := tx.MarkOrderNonceUsed(s.params.Address, order.Trader, order.Nonce); err != nil {
		return err
	}
	if order.IsBuying != (side == DirectionSell) {
		return fmt.Errorf("%w: strategy %s", ErrWrongOrderSide, side)
	}
	return nil
}
