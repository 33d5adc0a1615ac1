// Package permissions exposes the permission grant and server trust operations
// together with the read queries over the on-chain records.
package permissions

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/batch"
	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/dispatcher"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/events"
	"github.com/omni/permission-relay/grantfile"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/relayer"
	"github.com/omni/permission-relay/sdkerrors"
	"github.com/omni/permission-relay/signer"
	"github.com/omni/permission-relay/typeddata"
)

const nonceRetryInterval = 500 * time.Millisecond

// TxOptions apply to a single mutating operation.
type TxOptions struct {
	// Account overrides the default account of the wallet.
	Account *common.Address
	// Gas is ignored when the operation goes through the relayer.
	Gas      *entity.GasOptions
	OnStatus func(*relayer.Status)
}

type Deps struct {
	Composer   *typeddata.Composer
	Signer     *signer.Signer
	Cache      *signer.Cache
	Dispatcher *dispatcher.Dispatcher
	Resolver   *events.Resolver
	GrantFiles *grantfile.Builder
	Reader     *batch.Reader
	Grantees   *contract.GranteesContract
	Operations entity.RelayerOperationsRepo
}

// Controller does not serialize concurrent operations of the same account,
// callers must submit nonce bearing operations of one account and family in order.
type Controller struct {
	composer   *typeddata.Composer
	signer     *signer.Signer
	cache      *signer.Cache
	dispatcher *dispatcher.Dispatcher
	resolver   *events.Resolver
	grantFiles *grantfile.Builder
	reader     *batch.Reader
	grantees   *contract.GranteesContract
	operations entity.RelayerOperationsRepo
	logger     logging.Logger
}

func NewController(deps Deps, logger logging.Logger) *Controller {
	return &Controller{
		composer:   deps.Composer,
		signer:     deps.Signer,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		resolver:   deps.Resolver,
		grantFiles: deps.GrantFiles,
		reader:     deps.Reader,
		grantees:   deps.Grantees,
		operations: deps.Operations,
		logger:     logger,
	}
}

// Close drops every cached signature.
func (c *Controller) Close() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

func (c *Controller) account(opts *TxOptions) (common.Address, error) {
	var explicit *common.Address
	if opts != nil {
		explicit = opts.Account
	}
	return signer.ResolveAccount(explicit, c.signer.Wallet())
}

type composeFunc func(ctx context.Context, account common.Address) (*typeddata.Message, error)

// submit composes, signs and dispatches one message. A failed nonce read is
// retried once, every other failure is returned as is.
func (c *Controller) submit(ctx context.Context, op typeddata.Operation, account common.Address, compose composeFunc, opts *TxOptions) (res *events.TransactionResult, err error) {
	defer func() {
		observeResult(string(op), err)
	}()

	var msg *typeddata.Message
	err = backoff.Retry(func() error {
		var composeErr error
		msg, composeErr = compose(ctx, account)
		var nonceErr *sdkerrors.NonceError
		if composeErr != nil && !errors.As(composeErr, &nonceErr) {
			return backoff.Permanent(composeErr)
		}
		return composeErr
	}, backoff.WithContext(backoff.WithMaxRetries(nonceRetryBackOff(), 1), ctx))
	if err != nil {
		return nil, sdkerrors.WrapUnknown(err, "can't compose message")
	}

	logger := c.logger.WithFields(logrus.Fields{
		"operation": msg.Operation,
		"account":   account,
		"nonce":     msg.Nonce,
	})
	sig, err := c.signer.Sign(ctx, account, msg.TypedData)
	if err != nil {
		logger.WithError(err).Warn("message was not signed")
		return nil, err
	}

	dispatchOpts := new(dispatcher.Options)
	if opts != nil {
		dispatchOpts.Gas = opts.Gas
		dispatchOpts.OnStatus = opts.OnStatus
	}
	tx, err := c.dispatcher.Submit(ctx, msg, sig, dispatchOpts)
	if err != nil {
		return nil, sdkerrors.WrapUnknown(err, "can't submit message")
	}
	return tx, nil
}

func nonceRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = nonceRetryInterval
	return b
}

type RevokeResult struct {
	Transaction  *events.TransactionResult
	PermissionID *big.Int
}

func (c *Controller) Revoke(ctx context.Context, permissionID *big.Int, opts *TxOptions) (*RevokeResult, error) {
	account, err := c.account(opts)
	if err != nil {
		return nil, err
	}
	tx, err := c.submit(ctx, typeddata.OperationRevokePermission, account, func(ctx context.Context, account common.Address) (*typeddata.Message, error) {
		return c.composer.ComposeRevoke(ctx, account, permissionID)
	}, opts)
	if err != nil {
		return nil, err
	}
	event, err := c.resolver.ResolveExpectedEvent(ctx, tx, typeddata.OperationRevokePermission.ExpectedEvent())
	if err != nil {
		return nil, err
	}
	revoked, err := events.DecodePermissionRevoked(event)
	if err != nil {
		return nil, err
	}
	return &RevokeResult{Transaction: tx, PermissionID: revoked.PermissionID}, nil
}
