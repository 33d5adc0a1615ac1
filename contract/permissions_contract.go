package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	contractabi "github.com/omni/permission-relay/contract/abi"
	"github.com/omni/permission-relay/ledger"
)

type DataPermissionsContract struct {
	*Contract
}

func NewDataPermissionsContract(client ledger.Client, addr common.Address) *DataPermissionsContract {
	return &DataPermissionsContract{NewContract(DataPermissionsName, client, addr, contractabi.DataPermissionsABI)}
}

func (c *DataPermissionsContract) UserNonce(ctx context.Context, user common.Address) (*big.Int, error) {
	return callUint(ctx, c.Contract, "userNonce", user)
}

func (c *DataPermissionsContract) UnpackPermission(data []byte) (*PermissionInfo, error) {
	out, err := c.Unpack("permissions", data)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(PermissionInfo)).(*PermissionInfo), nil
}

type ServersContract struct {
	*Contract
}

func NewServersContract(client ledger.Client, addr common.Address) *ServersContract {
	return &ServersContract{NewContract(ServersName, client, addr, contractabi.ServersABI)}
}

func (c *ServersContract) UserNonce(ctx context.Context, user common.Address) (*big.Int, error) {
	return callUint(ctx, c.Contract, "userNonce", user)
}

func (c *ServersContract) UnpackServer(data []byte) (*ServerInfo, error) {
	out, err := c.Unpack("servers", data)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(ServerInfo)).(*ServerInfo), nil
}

type GranteesContract struct {
	*Contract
}

func NewGranteesContract(client ledger.Client, addr common.Address) *GranteesContract {
	return &GranteesContract{NewContract(GranteesName, client, addr, contractabi.GranteesABI)}
}

func (c *GranteesContract) GranteeIDByAddress(ctx context.Context, grantee common.Address) (*big.Int, error) {
	return callUint(ctx, c.Contract, "granteeAddressToId", grantee)
}

func (c *GranteesContract) Grantee(ctx context.Context, id *big.Int) (*GranteeInfo, error) {
	out, err := c.Call(ctx, "grantees", id)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(GranteeInfo)).(*GranteeInfo), nil
}

func (c *GranteesContract) UnpackGrantee(data []byte) (*GranteeInfo, error) {
	out, err := c.Unpack("grantees", data)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(GranteeInfo)).(*GranteeInfo), nil
}

// GranteePermissionIDsPaginated returns a page of permission ids together with
// the total count and the hasMore flag reported by the contract.
func (c *GranteesContract) GranteePermissionIDsPaginated(ctx context.Context, id *big.Int, offset, limit uint64) ([]*big.Int, uint64, bool, error) {
	out, err := c.Call(ctx, "granteePermissionIdsPaginated", id, new(big.Int).SetUint64(offset), new(big.Int).SetUint64(limit))
	if err != nil {
		return nil, 0, false, err
	}
	if len(out) != 3 {
		return nil, 0, false, fmt.Errorf("unexpected granteePermissionIdsPaginated result length %d", len(out))
	}
	ids := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	total := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	hasMore := *abi.ConvertType(out[2], new(bool)).(*bool)
	return ids, total.Uint64(), hasMore, nil
}

type Multicall3Contract struct {
	*Contract
}

func NewMulticall3Contract(client ledger.Client, addr common.Address) *Multicall3Contract {
	return &Multicall3Contract{NewContract(Multicall3Name, client, addr, contractabi.Multicall3ABI)}
}

func (c *Multicall3Contract) Aggregate3(ctx context.Context, calls []Call3) ([]Result3, error) {
	out, err := c.Call(ctx, "aggregate3", calls)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]Result3)).(*[]Result3), nil
}

func callUint(ctx context.Context, c *Contract, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// UnpackUint decodes a single uint256 result of method.
func UnpackUint(c *Contract, method string, data []byte) (*big.Int, error) {
	out, err := c.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
