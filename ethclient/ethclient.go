package ethclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

var (
	ErrIncompatibleChainID = errors.New("rpc url returned incompatible chainID")
	ErrInvalidCallMsg      = errors.New("invalid eth_call message")
)

type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint, error)
	HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	BatchCallContract(ctx context.Context, msgs []ethereum.CallMsg) ([]CallResult, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceiptByHash(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// CallResult holds the outcome of a single eth_call from a batch request.
type CallResult struct {
	Data  []byte
	Error error
}

type rpcClient struct {
	chainID   *big.Int
	url       string
	timeout   time.Duration
	limiter   *rate.Limiter
	rawClient *rpc.Client
	client    *ethclient.Client
}

func NewClient(url string, timeout time.Duration, rps float64, chainID string) (Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rawClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("can't dial JSON rpc url: %w", err)
	}
	limit := rate.Inf
	burst := math.MaxInt
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(math.Ceil(rps))
	}
	client := &rpcClient{
		url:       url,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, burst),
		rawClient: rawClient,
		client:    ethclient.NewClient(rawClient),
	}
	rpcChainID, err := client.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get chainID: %w", err)
	}
	if chainID != "" && rpcChainID.String() != chainID {
		return nil, fmt.Errorf("received chainID %s != expected %s: %w", rpcChainID, chainID, ErrIncompatibleChainID)
	}
	client.chainID = rpcChainID
	return client, nil
}

func (c *rpcClient) prepare(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, cancel, nil
}

func (c *rpcClient) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *rpcClient) BlockNumber(ctx context.Context) (uint, error) {
	defer ObserveDuration(c.url, "eth_blockNumber")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	ObserveError(c.url, "eth_blockNumber", err)
	return uint(n), err
}

func (c *rpcClient) HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error) {
	defer ObserveDuration(c.url, "eth_getBlockByNumber")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, n)
	ObserveError(c.url, "eth_getBlockByNumber", err)
	return header, err
}

func (c *rpcClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	defer ObserveDuration(c.url, "eth_call")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := c.client.CallContract(ctx, msg, nil)
	ObserveError(c.url, "eth_call", err)
	return res, err
}

// BatchCallContract sends all eth_call requests in a single JSON-RPC batch.
// Per-call failures are reported in the corresponding CallResult.
func (c *rpcClient) BatchCallContract(ctx context.Context, msgs []ethereum.CallMsg) ([]CallResult, error) {
	defer ObserveDuration(c.url, "eth_callBatch")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	defer func() {
		ObserveError(c.url, "eth_callBatch", err)
	}()

	results := make([]hexutil.Bytes, len(msgs))
	batches := make([]rpc.BatchElem, len(msgs))
	for i, msg := range msgs {
		var arg interface{}
		arg, err = toCallArg(msg)
		if err != nil {
			return nil, fmt.Errorf("can't encode call argument %d: %w", i, err)
		}
		batches[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{arg, "latest"},
			Result: &results[i],
		}
	}
	err = c.rawClient.BatchCallContext(ctx, batches)
	if err != nil {
		return nil, fmt.Errorf("can't make batch request: %w", err)
	}
	res := make([]CallResult, len(msgs))
	for i, b := range batches {
		res[i] = CallResult{Data: results[i], Error: b.Error}
	}
	return res, nil
}

func (c *rpcClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	defer ObserveDuration(c.url, "eth_getTransactionCount")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	nonce, err := c.client.PendingNonceAt(ctx, account)
	ObserveError(c.url, "eth_getTransactionCount", err)
	return nonce, err
}

func (c *rpcClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	defer ObserveDuration(c.url, "eth_maxPriorityFeePerGas")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	tip, err := c.client.SuggestGasTipCap(ctx)
	ObserveError(c.url, "eth_maxPriorityFeePerGas", err)
	return tip, err
}

func (c *rpcClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	defer ObserveDuration(c.url, "eth_gasPrice")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	price, err := c.client.SuggestGasPrice(ctx)
	ObserveError(c.url, "eth_gasPrice", err)
	return price, err
}

func (c *rpcClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	defer ObserveDuration(c.url, "eth_estimateGas")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	gas, err := c.client.EstimateGas(ctx, msg)
	ObserveError(c.url, "eth_estimateGas", err)
	return gas, err
}

func (c *rpcClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	defer ObserveDuration(c.url, "eth_sendRawTransaction")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	err = c.client.SendTransaction(ctx, tx)
	ObserveError(c.url, "eth_sendRawTransaction", err)
	return err
}

func (c *rpcClient) TransactionReceiptByHash(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	defer ObserveDuration(c.url, "eth_getTransactionReceipt")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		ObserveError(c.url, "eth_getTransactionReceipt", nil)
		return nil, err
	}
	ObserveError(c.url, "eth_getTransactionReceipt", err)
	return receipt, err
}

func toCallArg(msg ethereum.CallMsg) (interface{}, error) {
	if msg.To == nil {
		return nil, fmt.Errorf("contract creation is not supported: %w", ErrInvalidCallMsg)
	}
	arg := map[string]interface{}{
		"to":   msg.To,
		"data": hexutil.Bytes(msg.Data),
	}
	if msg.From != (common.Address{}) {
		arg["from"] = msg.From
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	return arg, nil
}
