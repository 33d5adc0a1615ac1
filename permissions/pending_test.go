package permissions_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/permission-relay/dispatcher"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/permissions"
	"github.com/omni/permission-relay/relayer"
	"github.com/omni/permission-relay/sdkerrors"
)

var errOperationNotFound = errors.New("operation not found")

type memStore struct {
	mu  sync.Mutex
	ops map[string]entity.RelayerOperation
	txs []*entity.Transaction
}

func newMemStore(ops ...entity.RelayerOperation) *memStore {
	s := &memStore{ops: make(map[string]entity.RelayerOperation)}
	for _, op := range ops {
		s.ops[op.OperationID] = op
	}
	return s
}

func (s *memStore) RecordTransaction(_ context.Context, tx *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
	return nil
}

func (s *memStore) RecordOperation(ctx context.Context, op *entity.RelayerOperation) error {
	return s.Ensure(ctx, op)
}

func (s *memStore) Operations() entity.RelayerOperationsRepo {
	return s
}

func (s *memStore) Ensure(_ context.Context, op *entity.RelayerOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.OperationID] = *op
	return nil
}

func (s *memStore) GetByOperationID(_ context.Context, operationID string) (*entity.RelayerOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[operationID]
	if !ok {
		return nil, errOperationNotFound
	}
	return &op, nil
}

func (s *memStore) FindPending(_ context.Context, _ time.Time) ([]*entity.RelayerOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*entity.RelayerOperation
	for _, op := range s.ops {
		if op.Status == entity.RelayerOperationPending {
			op := op
			res = append(res, &op)
		}
	}
	return res, nil
}

type waitResult struct {
	hash common.Hash
	err  error
}

type scriptedWaiter struct {
	mu      sync.Mutex
	results map[string]waitResult
	calls   map[string]int
}

func (w *scriptedWaiter) Wait(_ context.Context, operationID string, onStatus func(*relayer.Status)) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls[operationID]++
	res := w.results[operationID]
	if onStatus != nil && res.err == nil {
		onStatus(&relayer.Status{OperationID: operationID, State: relayer.StatusConfirmed, Hash: &res.hash})
	}
	return res.hash, res.err
}

func pendingOp(id string) entity.RelayerOperation {
	return entity.RelayerOperation{
		OperationID: id,
		Account:     common.HexToAddress("0xA11CE"),
		Contract:    "DataPermissions",
		Function:    "addPermission",
		Operation:   "submitAddPermission",
		Status:      entity.RelayerOperationPending,
	}
}

func newPendingController(store *memStore, waiter *scriptedWaiter) *permissions.Controller {
	d := dispatcher.New(nil, waiter, nil, logging.NewNop())
	d.SetRecorder(store)
	return permissions.NewController(permissions.Deps{
		Dispatcher: d,
		Operations: store.Operations(),
	}, logging.NewNop())
}

func TestPendingSweeper_Sweep(t *testing.T) {
	t.Parallel()

	hash := common.HexToHash("0xc0ffee")
	store := newMemStore(pendingOp("op-confirmed"), pendingOp("op-failed"), pendingOp("op-waiting"))
	waiter := &scriptedWaiter{
		calls: make(map[string]int),
		results: map[string]waitResult{
			"op-confirmed": {hash: hash},
			"op-failed":    {err: &sdkerrors.RelayerError{Message: "execution reverted"}},
			"op-waiting":   {err: &sdkerrors.PollTimeoutError{OperationID: "op-waiting", Elapsed: time.Second}},
		},
	}
	sweeper := permissions.NewPendingSweeper(newPendingController(store, waiter), time.Minute, time.Second, logging.NewNop())

	resumed, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, resumed)

	require.Equal(t, entity.RelayerOperationConfirmed, store.ops["op-confirmed"].Status)
	require.Equal(t, hash, *store.ops["op-confirmed"].Hash)
	require.Equal(t, entity.RelayerOperationFailed, store.ops["op-failed"].Status)
	require.Contains(t, *store.ops["op-failed"].Error, "execution reverted")
	require.Equal(t, entity.RelayerOperationPending, store.ops["op-waiting"].Status)
	require.Len(t, store.txs, 1)
	require.Equal(t, hash, store.txs[0].Hash)
	require.Equal(t, entity.SubmissionPathRelayer, store.txs[0].Path)

	resumed, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, resumed)
	require.Equal(t, map[string]int{"op-confirmed": 1, "op-failed": 1, "op-waiting": 2}, waiter.calls)
}

func TestPendingSweeper_NoRepo(t *testing.T) {
	t.Parallel()

	c := permissions.NewController(permissions.Deps{}, logging.NewNop())
	_, err := permissions.NewPendingSweeper(c, time.Minute, time.Second, logging.NewNop()).Sweep(context.Background())
	require.ErrorIs(t, err, permissions.ErrNoOperationsRepo)

	_, err = c.ResumePending(context.Background(), "op", nil)
	require.ErrorIs(t, err, permissions.ErrNoOperationsRepo)
}

func TestController_ResumePending(t *testing.T) {
	t.Parallel()

	hash := common.HexToHash("0xbeef")
	confirmed := pendingOp("op-done")
	confirmed.Status = entity.RelayerOperationConfirmed
	confirmed.Hash = &hash

	store := newMemStore(confirmed, pendingOp("op-pending"))
	waiter := &scriptedWaiter{
		calls:   make(map[string]int),
		results: map[string]waitResult{"op-pending": {hash: hash}},
	}
	c := newPendingController(store, waiter)

	res, err := c.ResumePending(context.Background(), "op-done", nil)
	require.NoError(t, err)
	require.Equal(t, hash, res.Hash)
	require.Zero(t, waiter.calls["op-done"])

	var states []relayer.StatusState
	res, err = c.ResumePending(context.Background(), "op-pending", func(s *relayer.Status) {
		states = append(states, s.State)
	})
	require.NoError(t, err)
	require.Equal(t, hash, res.Hash)
	require.Equal(t, []relayer.StatusState{relayer.StatusConfirmed}, states)

	op, err := c.Operation(context.Background(), "op-pending")
	require.NoError(t, err)
	require.Equal(t, entity.RelayerOperationConfirmed, op.Status)

	_, err = c.ResumePending(context.Background(), "op-missing", nil)
	require.ErrorIs(t, err, errOperationNotFound)
}
