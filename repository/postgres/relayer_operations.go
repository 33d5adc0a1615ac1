package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/permission-relay/db"
	"github.com/omni/permission-relay/entity"
)

type relayerOperationsRepo basePostgresRepo

func NewRelayerOperationsRepo(table string, db *db.DB) entity.RelayerOperationsRepo {
	return (*relayerOperationsRepo)(newBasePostgresRepo(table, db))
}

// Ensure upserts the operation. A terminal status is never overwritten by pending.
func (r *relayerOperationsRepo) Ensure(ctx context.Context, op *entity.RelayerOperation) error {
	q, args, err := sq.Insert(r.table).
		Columns("operation_id", "account", "contract", "function", "operation", "status", "hash", "error").
		Values(op.OperationID, op.Account, op.Contract, op.Function, op.Operation, op.Status, op.Hash, op.Error).
		Suffix(fmt.Sprintf("ON CONFLICT (operation_id) DO UPDATE SET updated_at = NOW(), "+
			"status = EXCLUDED.status, hash = EXCLUDED.hash, error = EXCLUDED.error "+
			"WHERE %s.status = '%s'", r.table, entity.RelayerOperationPending)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert relayer operation: %w", err)
	}
	return nil
}

func (r *relayerOperationsRepo) GetByOperationID(ctx context.Context, operationID string) (*entity.RelayerOperation, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"operation_id": operationID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	op := new(entity.RelayerOperation)
	err = r.db.GetContext(ctx, op, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("can't get relayer operation: %w", err)
	}
	return op, nil
}

func (r *relayerOperationsRepo) FindPending(ctx context.Context, olderThan time.Time) ([]*entity.RelayerOperation, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"status": entity.RelayerOperationPending}).
		Where(sq.Lt{"updated_at": olderThan}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	ops := make([]*entity.RelayerOperation, 0, 10)
	err = r.db.SelectContext(ctx, &ops, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find pending relayer operations: %w", err)
	}
	return ops, nil
}
