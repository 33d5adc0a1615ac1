// Package batch reads paginated on-chain collections with multicall batches.
package batch

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/ethclient"
)

type Call struct {
	Target common.Address
	Data   []byte
}

// Result of a single call, a failed call never fails the whole batch.
type Result struct {
	Success bool
	Data    []byte
	Err     error
}

type Multicaller interface {
	Multicall(ctx context.Context, calls []Call) ([]Result, error)
}

// Multicall3Caller aggregates the calls into a single aggregate3 eth_call.
type Multicall3Caller struct {
	contract *contract.Multicall3Contract
}

func NewMulticall3Caller(c *contract.Multicall3Contract) *Multicall3Caller {
	return &Multicall3Caller{contract: c}
}

func (m *Multicall3Caller) Multicall(ctx context.Context, calls []Call) ([]Result, error) {
	calls3 := make([]contract.Call3, len(calls))
	for i, call := range calls {
		calls3[i] = contract.Call3{
			Target:       call.Target,
			AllowFailure: true,
			CallData:     call.Data,
		}
	}
	out, err := m.contract.Aggregate3(ctx, calls3)
	if err != nil {
		return nil, fmt.Errorf("can't execute aggregate3 with %d calls: %w", len(calls), err)
	}
	if len(out) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(out), len(calls))
	}
	res := make([]Result, len(out))
	for i, r := range out {
		res[i] = Result{Success: r.Success, Data: r.ReturnData}
		if !r.Success {
			res[i].Err = fmt.Errorf("call to %s reverted", calls[i].Target)
		}
	}
	return res, nil
}

// RPCBatchCaller sends the calls as one JSON-RPC batch of eth_call requests,
// for chains without a Multicall3 deployment.
type RPCBatchCaller struct {
	client ethclient.Client
}

func NewRPCBatchCaller(client ethclient.Client) *RPCBatchCaller {
	return &RPCBatchCaller{client: client}
}

func (m *RPCBatchCaller) Multicall(ctx context.Context, calls []Call) ([]Result, error) {
	msgs := make([]ethereum.CallMsg, len(calls))
	for i, call := range calls {
		to := call.Target
		msgs[i] = ethereum.CallMsg{To: &to, Data: call.Data}
	}
	out, err := m.client.BatchCallContract(ctx, msgs)
	if err != nil {
		return nil, err
	}
	res := make([]Result, len(out))
	for i, r := range out {
		res[i] = Result{Success: r.Error == nil, Data: r.Data, Err: r.Error}
	}
	return res, nil
}
