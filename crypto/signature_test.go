package crypto

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var testFields = []apitypes.Type{
	{Name: "trader", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "isBuying", Type: "bool"},
}

func testMessage(trader common.Address, amount int64) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"trader":   trader.Hex(),
		"amount":   big.NewInt(amount).String(),
		"isBuying": true,
	}
}

func TestTypedDataSignRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	domain := Domain{Name: "Crab", Version: "2", ChainID: big.NewInt(1), VerifyingContract: common.HexToAddress("0xc0ffee")}
	digest, err := HashTypedData(domain, "Test", testFields, testMessage(key.Address(), 5))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("expected wallet-style V, got %d", sig[64])
	}
	signer, err := Secp256k1Verifier{}.Recover(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != key.Address() {
		t.Fatalf("recovered %s, expected %s", signer.Hex(), key.Address().Hex())
	}
}

func TestTypedDataDomainSeparation(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	base := Domain{Name: "Crab", Version: "2", ChainID: big.NewInt(1), VerifyingContract: common.HexToAddress("0x01")}
	digest, err := HashTypedData(base, "Test", testFields, testMessage(key.Address(), 5))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	variants := []Domain{
		{Name: "Crab", Version: "2", ChainID: big.NewInt(1), VerifyingContract: common.HexToAddress("0x02")},
		{Name: "Crab", Version: "3", ChainID: big.NewInt(1), VerifyingContract: common.HexToAddress("0x01")},
		{Name: "Crab", Version: "2", ChainID: big.NewInt(5), VerifyingContract: common.HexToAddress("0x01")},
	}
	for i, domain := range variants {
		other, err := HashTypedData(domain, "Test", testFields, testMessage(key.Address(), 5))
		if err != nil {
			t.Fatalf("hash variant %d: %v", i, err)
		}
		if string(other) == string(digest) {
			t.Fatalf("variant %d produced the same digest", i)
		}
	}
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	other, _ := HashTypedData(variants[0], "Test", testFields, testMessage(key.Address(), 5))
	signer, err := Secp256k1Verifier{}.Recover(other, sig)
	if err == nil && signer == key.Address() {
		t.Fatalf("signature must not verify under a different verifying contract")
	}
}

func TestRecoverRejectsMalformed(t *testing.T) {
	if _, err := (Secp256k1Verifier{}).Recover(make([]byte, 32), make([]byte, 10)); !errors.Is(err, ErrSignatureLength) {
		t.Fatalf("expected length error, got %v", err)
	}
	sig := make([]byte, 65)
	sig[64] = 9
	if _, err := (Secp256k1Verifier{}).Recover(make([]byte, 32), sig); !errors.Is(err, ErrSignatureRecovery) {
		t.Fatalf("expected recovery error, got %v", err)
	}
}

func TestPrivateKeyHexRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, err := PrivateKeyFromHex("0x" + common.Bytes2Hex(key.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Address() != key.Address() {
		t.Fatalf("address mismatch after round trip")
	}
}
