package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/omni/permission-relay/typeddata"
)

// Wallet is the signing capability. Account returns the zero address when
// the wallet has no default account.
type Wallet interface {
	Account() common.Address
	SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) ([]byte, error)
}

type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeyWallet(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func NewKeyWalletFromHex(hexKey string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("can't parse private key: %w", err)
	}
	return NewKeyWallet(key), nil
}

func (w *KeyWallet) Account() common.Address {
	return w.address
}

func (w *KeyWallet) PrivateKey() *ecdsa.PrivateKey {
	return w.key
}

func (w *KeyWallet) SignTypedData(_ context.Context, account common.Address, data apitypes.TypedData) ([]byte, error) {
	if account != w.address {
		return nil, fmt.Errorf("wallet does not manage account %s", account)
	}
	digest, err := typeddata.Hash(data)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
