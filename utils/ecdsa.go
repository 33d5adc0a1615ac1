package utils

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignatureLength = errors.New("signature must be 65 bytes long")

// RecoverDigestSigner restores the signer of a 32-byte digest, such as an EIP-712 hash.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverDigestSigner(digest, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignatureLength
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pk, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("can't recover ecdsa signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pk), nil
}
