// Package dispatcher submits signed typed data messages either through the
// relayer or directly to the verifying contract.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/events"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/relayer"
	"github.com/omni/permission-relay/sdkerrors"
	"github.com/omni/permission-relay/typeddata"
	"github.com/omni/permission-relay/utils"
)

type Waiter interface {
	Wait(ctx context.Context, operationID string, onStatus func(*relayer.Status)) (common.Hash, error)
}

// Recorder persists dispatched transactions and pending relayer operations.
// Recording failures are logged and never fail the submission.
type Recorder interface {
	RecordTransaction(ctx context.Context, tx *entity.Transaction) error
	RecordOperation(ctx context.Context, op *entity.RelayerOperation) error
}

type Options struct {
	// Gas is used by direct submissions only.
	Gas      *entity.GasOptions
	OnStatus func(*relayer.Status)
}

type Dispatcher struct {
	relayer   relayer.Relayer
	poller    Waiter
	contracts map[string]*contract.Contract
	recorder  Recorder
	logger    logging.Logger
}

// New creates a dispatcher, a nil relay means every message is submitted directly.
func New(relay relayer.Relayer, poller Waiter, contracts []*contract.Contract, logger logging.Logger) *Dispatcher {
	byName := make(map[string]*contract.Contract, len(contracts))
	for _, c := range contracts {
		byName[c.Name()] = c
	}
	return &Dispatcher{
		relayer:   relay,
		poller:    poller,
		contracts: byName,
		logger:    logger,
	}
}

func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

func (d *Dispatcher) UsesRelayer() bool {
	return d.relayer != nil
}

func (d *Dispatcher) Submit(ctx context.Context, msg *typeddata.Message, signature []byte, opts *Options) (*events.TransactionResult, error) {
	if opts == nil {
		opts = new(Options)
	}
	logger := d.logger.WithFields(logrus.Fields{
		"operation": msg.Operation,
		"account":   msg.Account,
		"nonce":     msg.Nonce,
	})

	var (
		res *events.TransactionResult
		err error
	)
	if d.relayer != nil {
		if opts.Gas != nil {
			logger.Warn("gas options are ignored for relayer submissions")
		}
		res, err = d.submitRelayer(ctx, logger, msg, signature, opts)
	} else {
		res, err = d.submitDirect(ctx, msg, signature, opts)
	}
	if err != nil {
		logger.WithError(err).Error("can't submit operation")
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"tx_hash": res.Hash,
		"path":    res.Path,
	}).Info("operation submitted")
	d.recordTransaction(ctx, logger, res)
	return res, nil
}

func (d *Dispatcher) submitRelayer(ctx context.Context, logger logging.Logger, msg *typeddata.Message, signature []byte, opts *Options) (*events.TransactionResult, error) {
	resp, err := d.relayer.Relay(ctx, &relayer.SignedRequest{
		Operation:           string(msg.Operation),
		TypedData:           msg.TypedData,
		Signature:           signature,
		ExpectedUserAddress: msg.Account.Hex(),
	})
	if err != nil {
		if sdkerrors.IsKnown(err) {
			return nil, err
		}
		return nil, &sdkerrors.RelayerError{Message: "relay request failed", Cause: err}
	}

	result := func(hash common.Hash) *events.TransactionResult {
		return events.NewTransactionResult(hash, msg.Account, msg.Contract, msg.Method, string(msg.Operation), entity.SubmissionPathRelayer)
	}

	switch r := resp.(type) {
	case *relayer.SubmittedResponse:
		return result(r.Hash), nil
	case *relayer.ConfirmedResponse:
		return result(r.Hash), nil
	case *relayer.PendingResponse:
		op := &entity.RelayerOperation{
			OperationID: r.OperationID,
			Account:     msg.Account,
			Contract:    msg.Contract,
			Function:    msg.Method,
			Operation:   string(msg.Operation),
			Status:      entity.RelayerOperationPending,
		}
		logger.WithField("operation_id", r.OperationID).Info("relayer accepted operation, waiting for confirmation")
		d.recordOperation(ctx, logger, op)
		hash, err := d.await(ctx, logger, op, opts.OnStatus)
		if err != nil {
			return nil, err
		}
		return result(hash), nil
	case *relayer.ErrorResponse:
		return nil, &sdkerrors.RelayerError{Message: r.Error}
	default:
		return nil, &sdkerrors.RelayerError{
			Message: fmt.Sprintf("relayer responded with %T to %s", resp, msg.Operation),
			Cause:   sdkerrors.ErrUnexpectedResponse,
		}
	}
}

// Resume continues polling of a pending relayer operation recorded earlier.
func (d *Dispatcher) Resume(ctx context.Context, op *entity.RelayerOperation, onStatus func(*relayer.Status)) (*events.TransactionResult, error) {
	logger := d.logger.WithFields(logrus.Fields{
		"operation":    op.Operation,
		"account":      op.Account,
		"operation_id": op.OperationID,
	})
	if op.Status == entity.RelayerOperationConfirmed && op.Hash != nil {
		return events.NewTransactionResult(*op.Hash, op.Account, op.Contract, op.Function, op.Operation, entity.SubmissionPathRelayer), nil
	}
	hash, err := d.await(ctx, logger, op, onStatus)
	if err != nil {
		return nil, err
	}
	res := events.NewTransactionResult(hash, op.Account, op.Contract, op.Function, op.Operation, entity.SubmissionPathRelayer)
	d.recordTransaction(ctx, logger, res)
	return res, nil
}

func (d *Dispatcher) await(ctx context.Context, logger logging.Logger, op *entity.RelayerOperation, onStatus func(*relayer.Status)) (common.Hash, error) {
	if d.poller == nil {
		return common.Hash{}, &sdkerrors.RelayerError{Message: "operation " + op.OperationID + " is pending and no poller is configured"}
	}
	hash, err := d.poller.Wait(ctx, op.OperationID, onStatus)
	if err != nil {
		var relayerErr *sdkerrors.RelayerError
		if errors.As(err, &relayerErr) {
			msg := relayerErr.Error()
			op.Status = entity.RelayerOperationFailed
			op.Error = &msg
			d.recordOperation(ctx, logger, op)
		}
		return common.Hash{}, err
	}
	op.Status = entity.RelayerOperationConfirmed
	op.Hash = &hash
	d.recordOperation(ctx, logger, op)
	return hash, nil
}

func (d *Dispatcher) submitDirect(ctx context.Context, msg *typeddata.Message, signature []byte, opts *Options) (*events.TransactionResult, error) {
	c, ok := d.contracts[msg.Contract]
	if !ok {
		return nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("contract %s is not configured", msg.Contract)}
	}

	digest, err := msg.Digest()
	if err != nil {
		return nil, err
	}
	recovered, err := utils.RecoverDigestSigner(digest, signature)
	if err != nil {
		return nil, &sdkerrors.SignatureError{Cause: err}
	}
	if recovered != msg.Account {
		return nil, &sdkerrors.SignatureError{Cause: fmt.Errorf("signature belongs to %s, expected %s", recovered, msg.Account)}
	}

	hash, err := c.Transact(ctx, msg.Account, opts.Gas, msg.Method, msg.Input, signature)
	if err != nil {
		return nil, classifyDirectError(c, msg.Method, err)
	}
	return events.NewTransactionResult(hash, msg.Account, msg.Contract, msg.Method, string(msg.Operation), entity.SubmissionPathDirect), nil
}

func (d *Dispatcher) recordTransaction(ctx context.Context, logger logging.Logger, res *events.TransactionResult) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordTransaction(ctx, res.Record()); err != nil {
		logger.WithError(err).Warn("can't record transaction")
	}
}

func (d *Dispatcher) recordOperation(ctx context.Context, logger logging.Logger, op *entity.RelayerOperation) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordOperation(ctx, op); err != nil {
		logger.WithError(err).Warn("can't record relayer operation")
	}
}
