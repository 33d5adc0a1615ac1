package batch_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/permission-relay/batch"
	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/contract/abi"
	"github.com/omni/permission-relay/ledger"
	"github.com/omni/permission-relay/logging"
)

var (
	permissionsAddr = common.HexToAddress("0x1000")
	serversAddr     = common.HexToAddress("0x2000")
	granteesAddr    = common.HexToAddress("0x3000")
	owner           = common.HexToAddress("0xaaa")
)

// serversState answers servers contract calls the way the deployed contract would.
type serversState struct {
	ids       []*big.Int
	failing   map[uint64]bool
	multicall int
	sizes     []int
}

func (s *serversState) Multicall(_ context.Context, calls []batch.Call) ([]batch.Result, error) {
	s.multicall++
	s.sizes = append(s.sizes, len(calls))

	res := make([]batch.Result, len(calls))
	for i, call := range calls {
		if call.Target != serversAddr {
			return nil, fmt.Errorf("unexpected target %s", call.Target)
		}
		method, err := abi.ServersABI.MethodById(call.Data[:4])
		if err != nil {
			return nil, err
		}
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}

		var out []byte
		switch method.Name {
		case "userServerIdsLength":
			out, err = method.Outputs.Pack(big.NewInt(int64(len(s.ids))))
		case "userServerIdsAt":
			idx := args[1].(*big.Int).Uint64()
			if idx >= uint64(len(s.ids)) || s.failing[idx] {
				continue
			}
			out, err = method.Outputs.Pack(s.ids[idx])
		case "servers":
			id := args[0].(*big.Int)
			if s.failing[id.Uint64()] {
				continue
			}
			out, err = method.Outputs.Pack(contract.ServerInfo{
				Id:            id,
				Owner:         owner,
				ServerAddress: common.BigToAddress(id),
				PublicKey:     "0x04",
				Url:           fmt.Sprintf("https://server-%s.example", id),
			})
		default:
			return nil, fmt.Errorf("unexpected method %s", method.Name)
		}
		if err != nil {
			return nil, err
		}
		res[i] = batch.Result{Success: true, Data: out}
	}
	return res, nil
}

func sequentialIDs(n int) []*big.Int {
	ids := make([]*big.Int, n)
	for i := range ids {
		ids[i] = big.NewInt(int64(1000 + i))
	}
	return ids
}

func newReader(caller batch.Multicaller, l ledger.Client, batchSize uint64) *batch.Reader {
	return batch.NewReader(caller, batch.Contracts{
		Permissions: contract.NewDataPermissionsContract(l, permissionsAddr),
		Servers:     contract.NewServersContract(l, serversAddr),
		Grantees:    contract.NewGranteesContract(l, granteesAddr),
	}, batchSize, logging.NewNop())
}

func TestReader_FetchAll(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name          string
		Total         int
		ExpectedSizes []int
	}{
		{Name: "250 items", Total: 250, ExpectedSizes: []int{101, 100, 50}},
		{Name: "exact multiple", Total: 200, ExpectedSizes: []int{101, 100}},
		{Name: "empty", Total: 0, ExpectedSizes: []int{101}},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()

			state := &serversState{ids: sequentialIDs(test.Total)}
			page, err := newReader(state, nil, 100).FetchAll(context.Background(), batch.KindTrustedServers, owner)
			require.NoError(t, err)
			require.Len(t, page.Items, test.Total)
			for i, id := range page.Items {
				require.Equal(t, state.ids[i], id)
			}
			require.EqualValues(t, test.Total, page.TotalCount)
			require.False(t, page.HasMore)
			require.Empty(t, page.Failures)
			require.Equal(t, test.ExpectedSizes, state.sizes)
		})
	}
}

func TestReader_ReadPaginated(t *testing.T) {
	t.Parallel()

	state := &serversState{ids: sequentialIDs(25)}
	reader := newReader(state, nil, 100)

	page, err := reader.ReadPaginated(context.Background(), batch.KindTrustedServers, owner, 10, 10)
	require.NoError(t, err)
	require.Equal(t, state.ids[10:20], page.Items)
	require.EqualValues(t, 25, page.TotalCount)
	require.True(t, page.HasMore)
	require.Equal(t, 1, state.multicall)

	page, err = reader.ReadPaginated(context.Background(), batch.KindTrustedServers, owner, 20, 10)
	require.NoError(t, err)
	require.Equal(t, state.ids[20:], page.Items)
	require.False(t, page.HasMore)
}

func TestReader_ReadPaginatedSplitsWideWindows(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name          string
		Offset        uint64
		Limit         uint64
		ExpectedItems []int
		ExpectedSizes []int
		HasMore       bool
	}{
		{Name: "two batches", Offset: 3, Limit: 20, ExpectedItems: []int{3, 23}, ExpectedSizes: []int{11, 10}, HasMore: true},
		{Name: "limit past the end", Offset: 0, Limit: 1000, ExpectedItems: []int{0, 25}, ExpectedSizes: []int{11, 10, 5}},
		{Name: "single batch", Offset: 5, Limit: 10, ExpectedItems: []int{5, 15}, ExpectedSizes: []int{11}, HasMore: true},
		{Name: "offset past the end", Offset: 30, Limit: 50, ExpectedItems: []int{25, 25}, ExpectedSizes: []int{11}},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()

			state := &serversState{ids: sequentialIDs(25)}
			page, err := newReader(state, nil, 10).ReadPaginated(context.Background(), batch.KindTrustedServers, owner, test.Offset, test.Limit)
			require.NoError(t, err)
			require.Equal(t, test.ExpectedSizes, state.sizes)
			for _, size := range state.sizes {
				require.LessOrEqual(t, size, 11)
			}
			require.Len(t, page.Items, test.ExpectedItems[1]-test.ExpectedItems[0])
			for i, id := range page.Items {
				require.Equal(t, state.ids[test.ExpectedItems[0]+i], id)
			}
			require.EqualValues(t, 25, page.TotalCount)
			require.Equal(t, test.HasMore, page.HasMore)
		})
	}
}

func TestFanOut(t *testing.T) {
	t.Parallel()

	keys := make([]int, 40)
	for i := range keys {
		keys[i] = i
	}

	var running, peak atomic.Int32
	results, failures := batch.FanOut(context.Background(), keys, func(_ context.Context, k int) (int, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		if k%7 == 3 {
			return 0, fmt.Errorf("key %d failed", k)
		}
		return k * 10, nil
	}, strconv.Itoa)

	require.LessOrEqual(t, peak.Load(), int32(16))
	require.Len(t, failures, 6)
	for i, f := range failures {
		require.EqualValues(t, 3+7*i, f.Index)
		require.Equal(t, strconv.Itoa(3+7*i), f.Key)
		require.EqualError(t, f.Err, fmt.Sprintf("key %d failed", 3+7*i))
	}
	require.Len(t, results, 34)
	var expected []int
	for _, k := range keys {
		if k%7 != 3 {
			expected = append(expected, k*10)
		}
	}
	require.Equal(t, expected, results)
}

func TestReader_ItemFailure(t *testing.T) {
	t.Parallel()

	state := &serversState{ids: sequentialIDs(10), failing: map[uint64]bool{4: true}}
	page, err := newReader(state, nil, 100).FetchAll(context.Background(), batch.KindTrustedServers, owner)
	require.NoError(t, err)
	require.Len(t, page.Items, 9)
	require.Len(t, page.Failures, 1)
	require.EqualValues(t, 4, page.Failures[0].Index)
	require.NotContains(t, page.Items, state.ids[4])
}

func TestReader_TrustedServers(t *testing.T) {
	t.Parallel()

	state := &serversState{failing: map[uint64]bool{7: true}}
	ids := []*big.Int{big.NewInt(5), big.NewInt(6), big.NewInt(7), big.NewInt(8)}

	servers, failures, err := newReader(state, nil, 3).TrustedServers(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, []int{3, 1}, state.sizes)
	require.Len(t, servers, 3)
	require.Equal(t, "https://server-5.example", servers[0].URL)
	require.Equal(t, big.NewInt(8), servers[2].ID)
	require.Len(t, failures, 1)
	require.Equal(t, "7", failures[0].Key)
}

func TestReader_MulticallFailure(t *testing.T) {
	t.Parallel()

	caller := multicallFunc(func(context.Context, []batch.Call) ([]batch.Result, error) {
		return nil, errors.New("execution timeout")
	})
	_, err := newReader(caller, nil, 100).FetchAll(context.Background(), batch.KindTrustedServers, owner)
	require.Error(t, err)
}

type multicallFunc func(context.Context, []batch.Call) ([]batch.Result, error)

func (f multicallFunc) Multicall(ctx context.Context, calls []batch.Call) ([]batch.Result, error) {
	return f(ctx, calls)
}

// granteesLedger serves paginated grantee permission ids, always reporting hasMore.
type granteesLedger struct {
	ledger.Client
	ids   []*big.Int
	pages int
	fail  map[string]bool
}

func (l *granteesLedger) ReadContract(_ context.Context, _ common.Address, contractABI gethabi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	switch method {
	case "granteePermissionIdsPaginated":
		l.pages++
		offset, limit := args[1].(*big.Int).Uint64(), args[2].(*big.Int).Uint64()
		end := min(offset+limit, uint64(len(l.ids)))
		if offset > end {
			offset = end
		}
		return []interface{}{l.ids[offset:end], big.NewInt(int64(len(l.ids))), true}, nil
	case "grantees":
		id := args[0].(*big.Int)
		if l.fail[id.String()] {
			return nil, errors.New("execution reverted")
		}
		packed, err := contractABI.Methods[method].Outputs.Pack(contract.GranteeInfo{
			Owner:          owner,
			GranteeAddress: common.BigToAddress(id),
			PublicKey:      "0x04",
			PermissionIds:  []*big.Int{big.NewInt(1)},
		})
		if err != nil {
			return nil, err
		}
		return contractABI.Unpack(method, packed)
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func TestReader_GranteePermissionIDsStopsDespiteHasMore(t *testing.T) {
	t.Parallel()

	l := &granteesLedger{ids: sequentialIDs(25)}
	page, err := newReader(nil, l, 10).GranteePermissionIDs(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, l.ids, page.Items)
	require.EqualValues(t, 25, page.TotalCount)
	require.Equal(t, 3, l.pages)
}

func TestReader_Grantees(t *testing.T) {
	t.Parallel()

	l := &granteesLedger{fail: map[string]bool{"2": true}}
	grantees, failures := newReader(nil, l, 10).Grantees(context.Background(), []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)})
	require.Len(t, grantees, 2)
	require.Equal(t, big.NewInt(1), grantees[0].ID)
	require.Equal(t, big.NewInt(3), grantees[1].ID)
	require.Equal(t, common.BigToAddress(big.NewInt(3)), grantees[1].GranteeAddress)
	require.Len(t, failures, 1)
	require.Equal(t, "2", failures[0].Key)
}
