package typeddata

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/omni/permission-relay/sdkerrors"
)

// Message is a composed, not yet signed, typed data message.
// Input is the contract call argument carrying the same values as TypedData.
type Message struct {
	Operation Operation
	Account   common.Address
	Nonce     *big.Int
	Contract  string
	Method    string
	TypedData apitypes.TypedData
	Input     interface{}
}

func (m *Message) Digest() ([]byte, error) {
	return Hash(m.TypedData)
}

// Hash computes keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(message)).
func Hash(data apitypes.TypedData) ([]byte, error) {
	dataHash, err := hashStruct(data.Types, data.PrimaryType, data.Message)
	if err != nil {
		return nil, &sdkerrors.SerializationError{Message: fmt.Sprintf("can't hash %s struct", data.PrimaryType), Cause: err}
	}
	domainSeparator, err := hashStruct(data.Types, "EIP712Domain", data.Domain.Map())
	if err != nil {
		return nil, &sdkerrors.SerializationError{Message: "can't hash typed data domain", Cause: err}
	}
	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	return crypto.Keccak256(rawData), nil
}
