package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrSignatureLength   = errors.New("crypto: signature must be 65 bytes")
	ErrSignatureRecovery = errors.New("crypto: signature recovery failed")
)

// SignatureVerifier recovers the signer of a digest.
type SignatureVerifier interface {
	Recover(digest []byte, sig []byte) (common.Address, error)
}

// Secp256k1Verifier recovers Ethereum-style signatures.
type Secp256k1Verifier struct{}

// Recover accepts V encoded either as {0, 1} or {27, 28}.
func (Secp256k1Verifier) Recover(digest []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrSignatureLength
	}
	if len(digest) != common.HashLength {
		return common.Address{}, fmt.Errorf("%w: digest must be 32 bytes", ErrSignatureRecovery)
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery id", ErrSignatureRecovery)
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrSignatureRecovery, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
