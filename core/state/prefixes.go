package state

import (
	"encoding/binary"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	vaultPrefix      = []byte("controller/vault/")
	nextVaultIDKey   = []byte("controller/vault/next-id")
	normFactorKey    = []byte("funding/normalization-factor")
	strategyPrefix   = []byte("strategy/state/")
	balancePrefix    = []byte("token/balance/")
	allowancePrefix  = []byte("token/allowance/")
	supplyPrefix     = []byte("token/supply/")
	orderNoncePrefix = []byte("strategy/order-nonce/")
)

func vaultKey(id uint64) []byte {
	buf := make([]byte, len(vaultPrefix)+8)
	copy(buf, vaultPrefix)
	binary.BigEndian.PutUint64(buf[len(vaultPrefix):], id)
	return buf
}

func strategyKey(addr common.Address) []byte {
	return append(append([]byte(nil), strategyPrefix...), addr.Bytes()...)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func balanceKey(symbol string, addr common.Address) []byte {
	sym := normalizeSymbol(symbol)
	buf := make([]byte, 0, len(balancePrefix)+len(sym)+1+common.AddressLength)
	buf = append(buf, balancePrefix...)
	buf = append(buf, sym...)
	buf = append(buf, ':')
	return append(buf, addr.Bytes()...)
}

func allowanceKey(symbol string, owner, spender common.Address) []byte {
	sym := normalizeSymbol(symbol)
	buf := make([]byte, 0, len(allowancePrefix)+len(sym)+1+2*common.AddressLength)
	buf = append(buf, allowancePrefix...)
	buf = append(buf, sym...)
	buf = append(buf, ':')
	buf = append(buf, owner.Bytes()...)
	return append(buf, spender.Bytes()...)
}

func supplyKey(symbol string) []byte {
	return append(append([]byte(nil), supplyPrefix...), normalizeSymbol(symbol)...)
}

func orderNonceKey(strategy, trader common.Address, nonce *big.Int) []byte {
	buf := make([]byte, 0, len(orderNoncePrefix)+2*common.AddressLength+common.HashLength)
	buf = append(buf, orderNoncePrefix...)
	buf = append(buf, strategy.Bytes()...)
	buf = append(buf, trader.Bytes()...)
	return append(buf, common.BigToHash(nonce).Bytes()...)
}
