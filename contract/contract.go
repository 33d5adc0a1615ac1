package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/permission-relay/contract/abi"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/ledger"
)

const (
	DataPermissionsName = "DataPermissions"
	ServersName         = "DataPortabilityServers"
	GranteesName        = "DataPortabilityGrantees"
	Multicall3Name      = "Multicall3"
)

type Contract struct {
	name    string
	address common.Address
	client  ledger.Client
	abi     *abi.ABI
}

func NewContract(name string, client ledger.Client, addr common.Address, contractABI *abi.ABI) *Contract {
	return &Contract{name, addr, client, contractABI}
}

func (c *Contract) Name() string {
	return c.name
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) ABI() *abi.ABI {
	return c.abi
}

func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	return c.client.ReadContract(ctx, c.address, c.abi.ABI, method, args...)
}

func (c *Contract) Transact(ctx context.Context, from common.Address, gas *entity.GasOptions, method string, args ...interface{}) (common.Hash, error) {
	return c.client.WriteContract(ctx, &ledger.WriteRequest{
		Address: c.address,
		ABI:     c.abi.ABI,
		Method:  method,
		Args:    args,
		From:    from,
		Gas:     gas,
	})
}

func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode %s.%s calldata: %w", c.name, method, err)
	}
	return data, nil
}

func (c *Contract) Unpack(method string, data []byte) ([]interface{}, error) {
	out, err := c.abi.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s.%s result: %w", c.name, method, err)
	}
	return out, nil
}

func (c *Contract) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	event, values, err := c.abi.ParseLog(log)
	if err != nil || event == nil {
		return "", nil, err
	}
	return event.Name, values, nil
}
