package permissions

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/events"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/relayer"
	"github.com/omni/permission-relay/sdkerrors"
)

var ErrNoOperationsRepo = errors.New("relayer operations are not persisted")

// Operation returns the recorded state of a relayer operation.
func (c *Controller) Operation(ctx context.Context, operationID string) (*entity.RelayerOperation, error) {
	if c.operations == nil {
		return nil, ErrNoOperationsRepo
	}
	return c.operations.GetByOperationID(ctx, operationID)
}

// ResumePending continues waiting for a relayer operation that timed out or
// was cancelled earlier.
func (c *Controller) ResumePending(ctx context.Context, operationID string, onStatus func(*relayer.Status)) (*events.TransactionResult, error) {
	op, err := c.Operation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	return c.dispatcher.Resume(ctx, op, onStatus)
}

// PendingSweeper periodically resumes relayer operations left in the pending state.
type PendingSweeper struct {
	controller *Controller
	logger     logging.Logger
	Interval   time.Duration
	Timeout    time.Duration
}

func NewPendingSweeper(c *Controller, interval, timeout time.Duration, logger logging.Logger) *PendingSweeper {
	return &PendingSweeper{
		controller: c,
		logger:     logger,
		Interval:   interval,
		Timeout:    timeout,
	}
}

func (s *PendingSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	for {
		start := time.Now()
		resumed, err := s.Sweep(ctx)
		if err != nil {
			s.logger.WithError(err).Error("failed to sweep pending relayer operations")
		} else if resumed > 0 {
			s.logger.WithFields(logrus.Fields{
				"count":    resumed,
				"duration": time.Since(start),
			}).Info("resumed pending relayer operations")
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			ticker.Stop()
			return
		}
	}
}

// Sweep resumes every operation pending for longer than one interval and
// returns how many of them reached a terminal state.
func (s *PendingSweeper) Sweep(ctx context.Context) (int, error) {
	if s.controller.operations == nil {
		return 0, ErrNoOperationsRepo
	}
	ops, err := s.controller.operations.FindPending(ctx, time.Now().Add(-s.Interval))
	if err != nil {
		return 0, err
	}

	var resumed int
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		logger := s.logger.WithField("operation_id", op.OperationID)
		timeoutCtx, cancel := context.WithTimeout(ctx, s.Timeout)
		_, err = s.controller.dispatcher.Resume(timeoutCtx, op, nil)
		cancel()

		var timeoutErr *sdkerrors.PollTimeoutError
		switch {
		case err == nil:
			resumed++
			ResumedOperations.WithLabelValues("confirmed").Inc()
		case errors.As(err, &timeoutErr), errors.Is(err, sdkerrors.ErrPollCancelled):
			ResumedOperations.WithLabelValues("pending").Inc()
			logger.Debug("relayer operation is still pending")
		default:
			resumed++
			ResumedOperations.WithLabelValues("failed").Inc()
			logger.WithError(err).Warn("relayer operation failed")
		}
	}
	return resumed, nil
}
