package permissions

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/events"
	"github.com/omni/permission-relay/typeddata"
)

type TrustResult struct {
	Transaction *events.TransactionResult
	User        common.Address
	ServerID    *big.Int
}

func (c *Controller) TrustServer(ctx context.Context, serverID *big.Int, opts *TxOptions) (*TrustResult, error) {
	return c.serverTrust(ctx, typeddata.OperationTrustServer, func(ctx context.Context, account common.Address) (*typeddata.Message, error) {
		return c.composer.ComposeTrustServer(ctx, account, serverID)
	}, opts)
}

func (c *Controller) UntrustServer(ctx context.Context, serverID *big.Int, opts *TxOptions) (*TrustResult, error) {
	return c.serverTrust(ctx, typeddata.OperationUntrustServer, func(ctx context.Context, account common.Address) (*typeddata.Message, error) {
		return c.composer.ComposeUntrustServer(ctx, account, serverID)
	}, opts)
}

// AddAndTrustServer registers the server if needed and trusts it. A server
// already registered under another url fails with ServerURLMismatchError.
func (c *Controller) AddAndTrustServer(ctx context.Context, in *typeddata.AddServerInput, opts *TxOptions) (*TrustResult, error) {
	return c.serverTrust(ctx, typeddata.OperationAddAndTrustServer, func(ctx context.Context, account common.Address) (*typeddata.Message, error) {
		return c.composer.ComposeAddAndTrustServer(ctx, account, in)
	}, opts)
}

func (c *Controller) serverTrust(ctx context.Context, op typeddata.Operation, compose composeFunc, opts *TxOptions) (*TrustResult, error) {
	account, err := c.account(opts)
	if err != nil {
		return nil, err
	}
	tx, err := c.submit(ctx, op, account, compose, opts)
	if err != nil {
		return nil, err
	}
	event, err := c.resolver.ResolveExpectedEvent(ctx, tx, op.ExpectedEvent())
	if err != nil {
		return nil, err
	}

	res := &TrustResult{Transaction: tx}
	if op == typeddata.OperationUntrustServer {
		untrusted, err := events.DecodeServerUntrusted(event)
		if err != nil {
			return nil, err
		}
		res.User, res.ServerID = untrusted.User, untrusted.ServerID
	} else {
		trusted, err := events.DecodeServerTrusted(event)
		if err != nil {
			return nil, err
		}
		res.User, res.ServerID = trusted.User, trusted.ServerID
	}
	return res, nil
}
