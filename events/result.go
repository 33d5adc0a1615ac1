// Package events resolves the events emitted by dispatched transactions.
package events

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/permission-relay/entity"
)

type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TransactionResult is the uniform handle returned for both submission paths.
// Its receipt is fetched at most once, event resolution can be repeated freely.
type TransactionResult struct {
	Hash      common.Hash
	From      common.Address
	Contract  string
	Function  string
	Operation string
	Path      entity.SubmissionPath

	mu      sync.Mutex
	receipt *types.Receipt
}

func NewTransactionResult(hash common.Hash, from common.Address, contract, function, operation string, path entity.SubmissionPath) *TransactionResult {
	return &TransactionResult{
		Hash:      hash,
		From:      from,
		Contract:  contract,
		Function:  function,
		Operation: operation,
		Path:      path,
	}
}

func (r *TransactionResult) Receipt(ctx context.Context, waiter ReceiptWaiter) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.receipt != nil {
		return r.receipt, nil
	}
	receipt, err := waiter.WaitForReceipt(ctx, r.Hash)
	if err != nil {
		return nil, err
	}
	r.receipt = receipt
	return receipt, nil
}

func (r *TransactionResult) Record() *entity.Transaction {
	return &entity.Transaction{
		Hash:      r.Hash,
		Sender:    r.From,
		Contract:  r.Contract,
		Function:  r.Function,
		Operation: r.Operation,
		Path:      r.Path,
	}
}
