package dispatcher

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/contract/abi"
	"github.com/omni/permission-relay/sdkerrors"
)

var (
	serverURLMismatchRe = regexp.MustCompile(`ServerUrlMismatch\(\s*"([^"]*)"\s*,\s*"([^"]*)"\s*\)`)
	invalidNonceRe      = regexp.MustCompile(`InvalidNonce\(\s*(\d+)\s*,\s*(\d+)\s*\)`)
)

// classifyDirectError maps a failed direct write into the error taxonomy.
// Custom error revert data is decoded with the contract abi first, the textual
// form of the revert reason is matched when the node does not return revert data.
func classifyDirectError(c *contract.Contract, method string, err error) error {
	if sdkerrors.IsUserRejection(err) {
		return &sdkerrors.UserRejectedRequestError{Cause: err}
	}
	if sdkerrors.IsKnown(err) {
		return err
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := revertData(dataErr.ErrorData()); ok {
			if res := decodeRevert(c, data); res != nil {
				return res
			}
		}
	}

	if m := serverURLMismatchRe.FindStringSubmatch(err.Error()); m != nil {
		return &sdkerrors.ServerURLMismatchError{Existing: m[1], Provided: m[2]}
	}
	if m := invalidNonceRe.FindStringSubmatch(err.Error()); m != nil {
		return &sdkerrors.InvalidNonceError{Expected: m[1], Provided: m[2]}
	}
	return &sdkerrors.BlockchainError{Message: fmt.Sprintf("%s.%s failed", c.Name(), method), Cause: err}
}

func revertData(v interface{}) ([]byte, bool) {
	switch data := v.(type) {
	case string:
		decoded, err := hexutil.Decode(data)
		return decoded, err == nil
	case []byte:
		return data, true
	}
	return nil, false
}

func decodeRevert(c *contract.Contract, data []byte) error {
	revert, args, err := c.ABI().DecodeRevert(data)
	if err != nil {
		return nil
	}
	switch revert.Name {
	case abi.ServerURLMismatch:
		if len(args) == 2 {
			existing, _ := args[0].(string)
			provided, _ := args[1].(string)
			return &sdkerrors.ServerURLMismatchError{Existing: existing, Provided: provided}
		}
	case abi.InvalidNonce:
		if len(args) == 2 {
			expected, _ := args[0].(*big.Int)
			provided, _ := args[1].(*big.Int)
			return &sdkerrors.InvalidNonceError{Expected: expected.String(), Provided: provided.String()}
		}
	}
	return &sdkerrors.BlockchainError{Message: fmt.Sprintf("%s reverted with %s%v", c.Name(), revert.Name, args)}
}
