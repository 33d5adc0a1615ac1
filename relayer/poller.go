package relayer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/sdkerrors"
	"github.com/omni/permission-relay/utils"
)

type PollerConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxDuration time.Duration
	// TickTimeout bounds a single status request, which is not interrupted by cancellation.
	TickTimeout time.Duration
}

// Poller waits for pending relayer operations to reach a terminal state.
// Ticks for the same operation id never overlap.
type Poller struct {
	checker StatusChecker
	cfg     PollerConfig
	logger  logging.Logger

	mu    sync.Mutex
	locks map[string]*operationLock
}

type operationLock struct {
	sync.Mutex
	refs int
}

func NewPoller(checker StatusChecker, cfg PollerConfig, logger logging.Logger) *Poller {
	if cfg.TickTimeout == 0 {
		cfg.TickTimeout = 30 * time.Second
	}
	return &Poller{
		checker: checker,
		cfg:     cfg,
		logger:  logger,
		locks:   make(map[string]*operationLock),
	}
}

// Wait polls until the operation is confirmed or failed. Cancelling ctx stops
// polling at the next tick boundary with ErrPollCancelled. Running out of
// MaxDuration returns a PollTimeoutError, polling may be resumed later with the same id.
// onStatus, if not nil, is invoked after every tick.
func (p *Poller) Wait(ctx context.Context, operationID string, onStatus func(*Status)) (common.Hash, error) {
	lock := p.acquire(operationID)
	defer p.release(operationID, lock)

	logger := p.logger.WithField("operation_id", operationID)
	start := time.Now()
	deadline := start.Add(p.cfg.MaxDuration)

	intervals := backoff.NewExponentialBackOff()
	intervals.InitialInterval = p.cfg.Interval
	intervals.MaxInterval = p.cfg.MaxInterval
	intervals.Multiplier = p.cfg.Multiplier
	intervals.RandomizationFactor = 0
	intervals.MaxElapsedTime = 0
	intervals.Reset()

	for tick := 1; ; tick++ {
		if ctx.Err() != nil {
			PollTicks.WithLabelValues("cancelled").Inc()
			logger.Info("polling cancelled")
			return common.Hash{}, sdkerrors.ErrPollCancelled
		}

		status, err := p.tick(ctx, operationID)
		if err != nil {
			var netErr *sdkerrors.NetworkError
			if !errors.As(err, &netErr) {
				PollTicks.WithLabelValues("error").Inc()
				return common.Hash{}, err
			}
			logger.WithError(err).Warn("transient relayer status failure")
			status = &Status{OperationID: operationID, State: StatusPending}
		}
		PollTicks.WithLabelValues(string(status.State)).Inc()
		if onStatus != nil {
			onStatus(status)
		}

		switch status.State {
		case StatusConfirmed:
			if status.Hash == nil {
				return common.Hash{}, &sdkerrors.RelayerError{Message: "confirmed operation " + operationID + " has no transaction hash"}
			}
			logger.WithFields(logrus.Fields{
				"tx_hash": status.Hash,
				"ticks":   tick,
			}).Info("relayer operation confirmed")
			return *status.Hash, nil
		case StatusFailed:
			msg := status.Error
			if msg == "" {
				msg = "operation " + operationID + " failed"
			}
			return common.Hash{}, &sdkerrors.RelayerError{Message: msg}
		case StatusPending:
		default:
			return common.Hash{}, &sdkerrors.RelayerError{Message: "unknown operation status " + string(status.State), Cause: sdkerrors.ErrUnexpectedResponse}
		}

		next := intervals.NextBackOff()
		if time.Now().Add(next).After(deadline) {
			PollTicks.WithLabelValues("timeout").Inc()
			logger.WithField("ticks", tick).Warn("relayer operation is still pending")
			return common.Hash{}, &sdkerrors.PollTimeoutError{OperationID: operationID, Elapsed: time.Since(start)}
		}
		if !utils.ContextSleep(ctx, next) {
			PollTicks.WithLabelValues("cancelled").Inc()
			logger.Info("polling cancelled")
			return common.Hash{}, sdkerrors.ErrPollCancelled
		}
	}
}

// tick is not interrupted by cancellation of the polling context.
func (p *Poller) tick(ctx context.Context, operationID string) (*Status, error) {
	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.TickTimeout)
	defer cancel()
	return p.checker.Status(tickCtx, operationID)
}

func (p *Poller) acquire(operationID string) *operationLock {
	p.mu.Lock()
	lock, ok := p.locks[operationID]
	if !ok {
		lock = new(operationLock)
		p.locks[operationID] = lock
	}
	lock.refs++
	p.mu.Unlock()

	lock.Lock()
	return lock
}

func (p *Poller) release(operationID string, lock *operationLock) {
	lock.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(p.locks, operationID)
	}
}
