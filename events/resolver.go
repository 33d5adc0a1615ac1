package events

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/sdkerrors"
)

type Event struct {
	Name     string
	Contract string
	Address  common.Address
	Values   map[string]interface{}
	Log      *types.Log
}

type Resolver struct {
	waiter    ReceiptWaiter
	contracts map[common.Address]*contract.Contract
}

func NewResolver(waiter ReceiptWaiter, contracts ...*contract.Contract) *Resolver {
	byAddress := make(map[common.Address]*contract.Contract, len(contracts))
	for _, c := range contracts {
		byAddress[c.Address()] = c
	}
	return &Resolver{
		waiter:    waiter,
		contracts: byAddress,
	}
}

// Events decodes every log of the mined transaction emitted by a known contract.
func (r *Resolver) Events(ctx context.Context, res *TransactionResult) ([]*Event, error) {
	receipt, err := res.Receipt(ctx, r.waiter)
	if err != nil {
		return nil, sdkerrors.WrapUnknown(err, fmt.Sprintf("can't get receipt for %s", res.Hash))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("transaction %s (%s.%s) reverted", res.Hash, res.Contract, res.Function)}
	}

	result := make([]*Event, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		c, ok := r.contracts[log.Address]
		if !ok {
			continue
		}
		name, values, err := c.ParseLog(log)
		if err != nil {
			return nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("can't decode %s log #%d", c.Name(), log.Index), Cause: err}
		}
		if name == "" {
			continue
		}
		result = append(result, &Event{
			Name:     name,
			Contract: c.Name(),
			Address:  log.Address,
			Values:   values,
			Log:      log,
		})
	}
	return result, nil
}

// ResolveExpectedEvent waits for the transaction to be mined and returns the first event with the given name.
// A successful transaction without such event is reported as a BlockchainError.
func (r *Resolver) ResolveExpectedEvent(ctx context.Context, res *TransactionResult, name string) (*Event, error) {
	evs, err := r.Events(ctx, res)
	if err != nil {
		return nil, err
	}
	for _, e := range evs {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("transaction %s has no %s event", res.Hash, name)}
}
