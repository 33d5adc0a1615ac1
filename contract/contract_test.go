package contract_test

import (
	"context"
	"math/big"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/ledger"
)

type abiLedger struct {
	ledger.Client
	results map[string][]interface{}
	writes  []*ledger.WriteRequest
}

func (l *abiLedger) ReadContract(_ context.Context, _ common.Address, contractABI gethabi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if _, err := contractABI.Pack(method, args...); err != nil {
		return nil, err
	}
	packed, err := contractABI.Methods[method].Outputs.Pack(l.results[method]...)
	if err != nil {
		return nil, err
	}
	return contractABI.Unpack(method, packed)
}

func (l *abiLedger) WriteContract(_ context.Context, req *ledger.WriteRequest) (common.Hash, error) {
	if _, err := req.ABI.Pack(req.Method, req.Args...); err != nil {
		return common.Hash{}, err
	}
	l.writes = append(l.writes, req)
	return common.HexToHash("0x01"), nil
}

func TestDataPermissionsContract(t *testing.T) {
	t.Parallel()

	info := contract.PermissionInfo{
		Id:         big.NewInt(5),
		Grantor:    common.HexToAddress("0xaaa"),
		Nonce:      big.NewInt(1),
		GranteeId:  big.NewInt(2),
		Grant:      "ipfs://grant",
		StartBlock: big.NewInt(100),
		EndBlock:   big.NewInt(0),
		FileIds:    []*big.Int{big.NewInt(1), big.NewInt(2)},
	}
	l := &abiLedger{results: map[string][]interface{}{
		"userNonce":   {big.NewInt(9)},
		"permissions": {info},
	}}
	c := contract.NewDataPermissionsContract(l, common.HexToAddress("0x1000"))

	nonce, err := c.UserNonce(context.Background(), common.HexToAddress("0xaaa"))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9), nonce)

	raw, err := c.ABI().Methods["permissions"].Outputs.Pack(info)
	require.NoError(t, err)
	decoded, err := c.UnpackPermission(raw)
	require.NoError(t, err)
	require.Equal(t, info.Grantor, decoded.Grantor)
	require.Equal(t, info.Grant, decoded.Grant)
	for _, pair := range [][2]*big.Int{
		{info.Id, decoded.Id},
		{info.Nonce, decoded.Nonce},
		{info.GranteeId, decoded.GranteeId},
		{info.StartBlock, decoded.StartBlock},
		{info.EndBlock, decoded.EndBlock},
	} {
		require.Zero(t, pair[0].Cmp(pair[1]), "expected %s, got %s", pair[0], pair[1])
	}
	require.Len(t, decoded.FileIds, len(info.FileIds))
	for i := range info.FileIds {
		require.Zero(t, info.FileIds[i].Cmp(decoded.FileIds[i]))
	}

	_, err = c.Transact(context.Background(), common.HexToAddress("0xaaa"), nil, "addPermission", contract.PermissionInput{
		Nonce:     big.NewInt(9),
		GranteeId: big.NewInt(2),
		Grant:     "ipfs://grant",
		FileIds:   []*big.Int{big.NewInt(1)},
	}, []byte{0x01})
	require.NoError(t, err)
	require.Len(t, l.writes, 1)
	require.Equal(t, "addPermission", l.writes[0].Method)
}

func TestServerFilesAndPermissionInputPacks(t *testing.T) {
	t.Parallel()

	c := contract.NewDataPermissionsContract(&abiLedger{}, common.HexToAddress("0x1000"))
	_, err := c.Pack("addServerFilesAndPermissions", contract.ServerFilesAndPermissionInput{
		Nonce:           big.NewInt(1),
		GranteeId:       big.NewInt(2),
		Grant:           "ipfs://grant",
		FileUrls:        []string{"ipfs://a", "ipfs://b"},
		SchemaIds:       []*big.Int{big.NewInt(0), big.NewInt(3)},
		ServerAddress:   common.HexToAddress("0xbbb"),
		ServerUrl:       "https://server.example",
		ServerPublicKey: "0x04ab",
		FilePermissions: [][]contract.FilePermission{
			{{Account: "0xbbb", Key: "k1"}},
			{},
		},
	}, []byte{0x01})
	require.NoError(t, err)
}

func TestGranteesContract(t *testing.T) {
	t.Parallel()

	l := &abiLedger{results: map[string][]interface{}{
		"granteeAddressToId":            {big.NewInt(4)},
		"granteePermissionIdsPaginated": {[]*big.Int{big.NewInt(10), big.NewInt(11)}, big.NewInt(12), true},
		"grantees": {contract.GranteeInfo{
			Owner:          common.HexToAddress("0x01"),
			GranteeAddress: common.HexToAddress("0x02"),
			PublicKey:      "pk",
			PermissionIds:  []*big.Int{big.NewInt(10)},
		}},
	}}
	c := contract.NewGranteesContract(l, common.HexToAddress("0x2000"))

	id, err := c.GranteeIDByAddress(context.Background(), common.HexToAddress("0x02"))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(4), id)

	ids, total, hasMore, err := c.GranteePermissionIDsPaginated(context.Background(), id, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []*big.Int{big.NewInt(10), big.NewInt(11)}, ids)
	require.Equal(t, uint64(12), total)
	require.True(t, hasMore)

	g, err := c.Grantee(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "pk", g.PublicKey)
	require.Equal(t, common.HexToAddress("0x02"), g.GranteeAddress)
}

func TestMulticall3Contract(t *testing.T) {
	t.Parallel()

	l := &abiLedger{results: map[string][]interface{}{
		"aggregate3": {[]contract.Result3{{Success: true, ReturnData: []byte{0x01}}, {Success: false}}},
	}}
	c := contract.NewMulticall3Contract(l, common.HexToAddress("0xca11"))
	res, err := c.Aggregate3(context.Background(), []contract.Call3{
		{Target: common.HexToAddress("0x01"), AllowFailure: true, CallData: []byte{0x02}},
	})
	require.NoError(t, err)
	require.Equal(t, []contract.Result3{{Success: true, ReturnData: []byte{0x01}}, {Success: false, ReturnData: []byte{}}}, res)
}

func TestContract_ParseLog(t *testing.T) {
	t.Parallel()

	c := contract.NewServersContract(&abiLedger{}, common.HexToAddress("0x3000"))
	event := c.ABI().Events["ServerTrusted"]
	user := common.HexToAddress("0xaaa")
	name, values, err := c.ParseLog(&types.Log{
		Topics: []common.Hash{event.ID, common.BytesToHash(user.Bytes()), common.BigToHash(big.NewInt(3))},
	})
	require.NoError(t, err)
	require.Equal(t, "ServerTrusted", name)
	require.Equal(t, map[string]interface{}{"user": user, "serverId": big.NewInt(3)}, values)
}
