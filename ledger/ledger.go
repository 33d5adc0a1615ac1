// Package ledger is the chain boundary used by the rest of the module:
// contract reads, contract writes, chain id and receipt waiting.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/ethclient"
	"github.com/omni/permission-relay/utils"
)

var (
	ErrNoTransactor   = errors.New("ledger has no transaction signing key")
	ErrUnknownAccount = errors.New("requested sender is not managed by ledger")
)

type Client interface {
	ReadContract(ctx context.Context, address common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error)
	WriteContract(ctx context.Context, req *WriteRequest) (common.Hash, error)
	ChainID(ctx context.Context) (*big.Int, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type WriteRequest struct {
	Address common.Address
	ABI     abi.ABI
	Method  string
	Args    []interface{}
	From    common.Address
	Gas     *entity.GasOptions
}

type EthLedger struct {
	client          ethclient.Client
	key             *ecdsa.PrivateKey
	address         common.Address
	receiptInterval time.Duration
}

// NewEthLedger creates a read-only ledger when key is nil.
func NewEthLedger(client ethclient.Client, key *ecdsa.PrivateKey, receiptInterval time.Duration) *EthLedger {
	l := &EthLedger{
		client:          client,
		key:             key,
		receiptInterval: receiptInterval,
	}
	if key != nil {
		l.address = crypto.PubkeyToAddress(key.PublicKey)
	}
	return l
}

func (l *EthLedger) ChainID(ctx context.Context) (*big.Int, error) {
	return l.client.ChainID(ctx)
}

func (l *EthLedger) ReadContract(ctx context.Context, address common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode abi calldata: %w", err)
	}
	res, err := l.client.CallContract(ctx, ethereum.CallMsg{
		To:   &address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot call %s(...): %w", method, err)
	}
	out, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s(...) result: %w", method, err)
	}
	return out, nil
}

func (l *EthLedger) WriteContract(ctx context.Context, req *WriteRequest) (common.Hash, error) {
	if l.key == nil {
		return common.Hash{}, ErrNoTransactor
	}
	if req.From != l.address {
		return common.Hash{}, fmt.Errorf("sender %s: %w", req.From, ErrUnknownAccount)
	}
	gas := req.Gas
	if gas == nil {
		gas = new(entity.GasOptions)
	}

	data, err := req.ABI.Pack(req.Method, req.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot encode abi calldata: %w", err)
	}
	chainID, err := l.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("can't get chain id: %w", err)
	}

	var nonce uint64
	if gas.Nonce != nil {
		nonce = *gas.Nonce
	} else if nonce, err = l.client.PendingNonceAt(ctx, l.address); err != nil {
		return common.Hash{}, fmt.Errorf("can't get pending nonce: %w", err)
	}

	var gasLimit uint64
	if gas.GasLimit != nil {
		gasLimit = *gas.GasLimit
	} else {
		gasLimit, err = l.client.EstimateGas(ctx, ethereum.CallMsg{
			From: l.address,
			To:   &req.Address,
			Data: data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("can't estimate gas for %s(...): %w", req.Method, err)
		}
	}

	txData, err := l.buildTx(ctx, chainID, nonce, gasLimit, req.Address, data, gas.Pricing)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := types.SignNewTx(l.key, types.LatestSignerForChainID(chainID), txData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("can't sign transaction: %w", err)
	}
	if err = l.client.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("can't send %s(...) transaction: %w", req.Method, err)
	}
	return tx.Hash(), nil
}

func (l *EthLedger) buildTx(ctx context.Context, chainID *big.Int, nonce, gasLimit uint64, to common.Address, data []byte, pricing entity.GasPricing) (types.TxData, error) {
	switch p := pricing.(type) {
	case entity.EIP1559Pricing:
		return &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: p.MaxPriorityFeePerGas,
			GasFeeCap: p.MaxFeePerGas,
			Gas:       gasLimit,
			To:        &to,
			Data:      data,
		}, nil
	case entity.LegacyPricing:
		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: p.GasPrice,
			Gas:      gasLimit,
			To:       &to,
			Data:     data,
		}, nil
	}

	head, err := l.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("can't get latest header: %w", err)
	}
	if head.BaseFee == nil {
		price, err2 := l.client.SuggestGasPrice(ctx)
		if err2 != nil {
			return nil, fmt.Errorf("can't suggest gas price: %w", err2)
		}
		return &types.LegacyTx{Nonce: nonce, GasPrice: price, Gas: gasLimit, To: &to, Data: data}, nil
	}
	tip, err := l.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't suggest gas tip cap: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      data,
	}, nil
}

func (l *EthLedger) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := l.client.TransactionReceiptByHash(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("can't get receipt for %s: %w", hash, err)
		}
		if !utils.ContextSleep(ctx, l.receiptInterval) {
			return nil, ctx.Err()
		}
	}
}
