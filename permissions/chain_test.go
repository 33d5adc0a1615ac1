package permissions_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/omni/permission-relay/batch"
	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/contract/abi"
	"github.com/omni/permission-relay/ledger"
)

var (
	permissionsAddr = common.HexToAddress("0x1000")
	serversAddr     = common.HexToAddress("0x2000")
	granteesAddr    = common.HexToAddress("0x3000")
	chainID         = big.NewInt(14800)
)

type revertError struct {
	data []byte
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorData() interface{} { return hexutil.Encode(e.data) }

func revert(contractABI *abi.ABI, name string, args ...interface{}) error {
	e := contractABI.Errors[name]
	packed, err := e.Inputs.Pack(args...)
	if err != nil {
		panic(err)
	}
	return &revertError{data: append(e.ID[:4:4], packed...)}
}

func eventLog(contractABI *abi.ABI, addr common.Address, name string, values ...interface{}) *types.Log {
	event := contractABI.Events[name]
	topics := []common.Hash{event.ID}
	var data []interface{}
	for i, input := range event.Inputs {
		if !input.Indexed {
			data = append(data, values[i])
			continue
		}
		switch v := values[i].(type) {
		case *big.Int:
			topics = append(topics, common.BigToHash(v))
		case common.Address:
			topics = append(topics, common.BytesToHash(v.Bytes()))
		}
	}
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	return &types.Log{Address: addr, Topics: topics, Data: packed}
}

// fakeChain simulates the permissions, servers and grantees contracts.
type fakeChain struct {
	ledger.Client

	mu              sync.Mutex
	permNonces      map[common.Address]int64
	serverNonces    map[common.Address]int64
	grantees        map[common.Address]int64
	permissions     []*contract.PermissionInfo
	userPermissions map[common.Address][]*big.Int
	servers         map[int64]*contract.ServerInfo
	trusted         map[common.Address][]*big.Int
	receipts        map[common.Hash]*types.Receipt
	writes          []*ledger.WriteRequest
	usedNonces      []int64
	nonceReads      int
	failNonceReads  int
	nilGranteeIDs   bool
	block           int64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		permNonces:      make(map[common.Address]int64),
		serverNonces:    make(map[common.Address]int64),
		grantees:        make(map[common.Address]int64),
		userPermissions: make(map[common.Address][]*big.Int),
		servers:         make(map[int64]*contract.ServerInfo),
		trusted:         make(map[common.Address][]*big.Int),
		receipts:        make(map[common.Hash]*types.Receipt),
		block:           100,
	}
}

func (c *fakeChain) ChainID(context.Context) (*big.Int, error) {
	return chainID, nil
}

func (c *fakeChain) WaitForReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", hash)
	}
	return receipt, nil
}

func (c *fakeChain) ReadContract(_ context.Context, addr common.Address, contractABI gethabi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if _, err := contractABI.Pack(method, args...); err != nil {
		return nil, err
	}
	if method == "granteeAddressToId" && c.nilGranteeIDs {
		return []interface{}{(*big.Int)(nil)}, nil
	}
	values, err := c.read(addr, method, args)
	if err != nil {
		return nil, err
	}
	packed, err := contractABI.Methods[method].Outputs.Pack(values...)
	if err != nil {
		return nil, err
	}
	return contractABI.Unpack(method, packed)
}

func (c *fakeChain) Multicall(_ context.Context, calls []batch.Call) ([]batch.Result, error) {
	abis := map[common.Address]*abi.ABI{
		permissionsAddr: abi.DataPermissionsABI,
		serversAddr:     abi.ServersABI,
		granteesAddr:    abi.GranteesABI,
	}
	res := make([]batch.Result, len(calls))
	for i, call := range calls {
		method, err := abis[call.Target].MethodById(call.Data[:4])
		if err != nil {
			return nil, err
		}
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		values, err := c.read(call.Target, method.Name, args)
		if err != nil {
			res[i] = batch.Result{Err: err}
			continue
		}
		packed, err := method.Outputs.Pack(values...)
		if err != nil {
			return nil, err
		}
		res[i] = batch.Result{Success: true, Data: packed}
	}
	return res, nil
}

func (c *fakeChain) read(addr common.Address, method string, args []interface{}) ([]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch method {
	case "userNonce":
		c.nonceReads++
		if c.failNonceReads > 0 {
			c.failNonceReads--
			return nil, errors.New("upstream request timeout")
		}
		user := args[0].(common.Address)
		if addr == serversAddr {
			return []interface{}{big.NewInt(c.serverNonces[user])}, nil
		}
		return []interface{}{big.NewInt(c.permNonces[user])}, nil
	case "granteeAddressToId":
		return []interface{}{big.NewInt(c.grantees[args[0].(common.Address)])}, nil
	case "grantees":
		id := args[0].(*big.Int).Int64()
		for addr, granteeID := range c.grantees {
			if granteeID == id {
				return []interface{}{contract.GranteeInfo{Owner: addr, GranteeAddress: addr, PublicKey: "0x04", PermissionIds: []*big.Int{}}}, nil
			}
		}
		return nil, errors.New("execution reverted")
	case "userPermissionIdsLength":
		return []interface{}{big.NewInt(int64(len(c.userPermissions[args[0].(common.Address)])))}, nil
	case "userPermissionIdsAt":
		return at(c.userPermissions[args[0].(common.Address)], args[1].(*big.Int))
	case "permissions":
		id := args[0].(*big.Int).Int64()
		if id < 1 || id > int64(len(c.permissions)) {
			return nil, revert(abi.DataPermissionsABI, "InactivePermission", big.NewInt(id))
		}
		return []interface{}{*c.permissions[id-1]}, nil
	case "userServerIdsLength":
		return []interface{}{big.NewInt(int64(len(c.trusted[args[0].(common.Address)])))}, nil
	case "userServerIdsAt":
		return at(c.trusted[args[0].(common.Address)], args[1].(*big.Int))
	case "servers":
		info, ok := c.servers[args[0].(*big.Int).Int64()]
		if !ok {
			return nil, revert(abi.ServersABI, "ServerNotFound")
		}
		return []interface{}{*info}, nil
	}
	return nil, fmt.Errorf("unexpected call %s", method)
}

func at(ids []*big.Int, index *big.Int) ([]interface{}, error) {
	if index.Uint64() >= uint64(len(ids)) {
		return nil, errors.New("execution reverted: index out of bounds")
	}
	return []interface{}{ids[index.Uint64()]}, nil
}

func useNonce(nonces map[common.Address]int64, user common.Address, provided *big.Int, contractABI *abi.ABI) error {
	expected := big.NewInt(nonces[user])
	if provided.Cmp(expected) != 0 {
		return revert(contractABI, abi.InvalidNonce, expected, provided)
	}
	nonces[user]++
	return nil
}

func (c *fakeChain) WriteContract(_ context.Context, req *ledger.WriteRequest) (common.Hash, error) {
	if _, err := req.ABI.Pack(req.Method, req.Args...); err != nil {
		return common.Hash{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, req)

	var logs []*types.Log
	switch req.Method {
	case "addPermission":
		in := req.Args[0].(contract.PermissionInput)
		if err := useNonce(c.permNonces, req.From, in.Nonce, abi.DataPermissionsABI); err != nil {
			return common.Hash{}, err
		}
		c.usedNonces = append(c.usedNonces, in.Nonce.Int64())
		id := c.addPermission(req.From, in.Nonce, in.GranteeId, in.Grant, in.FileIds)
		logs = append(logs, eventLog(abi.DataPermissionsABI, permissionsAddr, abi.PermissionAdded, id, req.From, in.GranteeId, in.Grant, in.FileIds))
	case "addServerFilesAndPermissions":
		in := req.Args[0].(contract.ServerFilesAndPermissionInput)
		if err := useNonce(c.permNonces, req.From, in.Nonce, abi.DataPermissionsABI); err != nil {
			return common.Hash{}, err
		}
		c.usedNonces = append(c.usedNonces, in.Nonce.Int64())
		fileIDs := make([]*big.Int, len(in.FileUrls))
		for i := range fileIDs {
			fileIDs[i] = big.NewInt(int64(500 + i))
		}
		id := c.addPermission(req.From, in.Nonce, in.GranteeId, in.Grant, fileIDs)
		logs = append(logs, eventLog(abi.DataPermissionsABI, permissionsAddr, abi.PermissionAdded, id, req.From, in.GranteeId, in.Grant, fileIDs))
	case "revokePermissionWithSignature":
		in := req.Args[0].(contract.RevokePermissionInput)
		if err := useNonce(c.permNonces, req.From, in.Nonce, abi.DataPermissionsABI); err != nil {
			return common.Hash{}, err
		}
		c.permissions[in.PermissionId.Int64()-1].EndBlock = big.NewInt(c.block)
		logs = append(logs, eventLog(abi.DataPermissionsABI, permissionsAddr, abi.PermissionRevoked, in.PermissionId))
	case "trustServerWithSignature":
		in := req.Args[0].(contract.TrustServerInput)
		if err := useNonce(c.serverNonces, req.From, in.Nonce, abi.ServersABI); err != nil {
			return common.Hash{}, err
		}
		c.trusted[req.From] = append(c.trusted[req.From], in.ServerId)
		logs = append(logs, eventLog(abi.ServersABI, serversAddr, abi.ServerTrusted, req.From, in.ServerId))
	case "untrustServerWithSignature":
		in := req.Args[0].(contract.TrustServerInput)
		if err := useNonce(c.serverNonces, req.From, in.Nonce, abi.ServersABI); err != nil {
			return common.Hash{}, err
		}
		var kept []*big.Int
		for _, id := range c.trusted[req.From] {
			if id.Cmp(in.ServerId) != 0 {
				kept = append(kept, id)
			}
		}
		c.trusted[req.From] = kept
		logs = append(logs, eventLog(abi.ServersABI, serversAddr, abi.ServerUntrusted, req.From, in.ServerId))
	case "addAndTrustServerWithSignature":
		in := req.Args[0].(contract.AddServerInput)
		var serverID *big.Int
		for id, info := range c.servers {
			if info.ServerAddress == in.ServerAddress {
				if info.Url != in.ServerUrl {
					return common.Hash{}, revert(abi.ServersABI, abi.ServerURLMismatch, info.Url, in.ServerUrl)
				}
				serverID = big.NewInt(id)
			}
		}
		if err := useNonce(c.serverNonces, req.From, in.Nonce, abi.ServersABI); err != nil {
			return common.Hash{}, err
		}
		if serverID == nil {
			serverID = big.NewInt(int64(len(c.servers) + 1))
			c.servers[serverID.Int64()] = &contract.ServerInfo{
				Id:            serverID,
				Owner:         req.From,
				ServerAddress: in.ServerAddress,
				PublicKey:     in.PublicKey,
				Url:           in.ServerUrl,
			}
			logs = append(logs, eventLog(abi.ServersABI, serversAddr, abi.ServerRegistered, serverID, req.From, in.ServerAddress, in.PublicKey, in.ServerUrl))
		}
		c.trusted[req.From] = append(c.trusted[req.From], serverID)
		logs = append(logs, eventLog(abi.ServersABI, serversAddr, abi.ServerTrusted, req.From, serverID))
	default:
		return common.Hash{}, fmt.Errorf("unexpected write %s", req.Method)
	}

	c.block++
	hash := crypto.Keccak256Hash(big.NewInt(c.block).Bytes())
	c.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, Logs: logs}
	return hash, nil
}

func (c *fakeChain) addPermission(user common.Address, nonce, granteeID *big.Int, grant string, fileIDs []*big.Int) *big.Int {
	id := big.NewInt(int64(len(c.permissions) + 1))
	c.permissions = append(c.permissions, &contract.PermissionInfo{
		Id:         id,
		Grantor:    user,
		Nonce:      nonce,
		GranteeId:  granteeID,
		Grant:      grant,
		StartBlock: big.NewInt(c.block),
		EndBlock:   big.NewInt(0),
		FileIds:    fileIDs,
	})
	c.userPermissions[user] = append(c.userPermissions[user], id)
	return id
}
