package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/db"
	"github.com/omni/permission-relay/entity"
)

type transactionsRepo basePostgresRepo

func NewTransactionsRepo(table string, db *db.DB) entity.TransactionsRepo {
	return (*transactionsRepo)(newBasePostgresRepo(table, db))
}

func (r *transactionsRepo) Ensure(ctx context.Context, tx *entity.Transaction) error {
	q, args, err := sq.Insert(r.table).
		Columns("hash", "sender", "contract", "function", "operation", "path").
		Values(tx.Hash, tx.Sender, tx.Contract, tx.Function, tx.Operation, tx.Path).
		Suffix("ON CONFLICT (hash) DO UPDATE SET updated_at = NOW()").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert transaction: %w", err)
	}
	return nil
}

func (r *transactionsRepo) GetByHash(ctx context.Context, hash common.Hash) (*entity.Transaction, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"hash": hash}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	tx := new(entity.Transaction)
	err = r.db.GetContext(ctx, tx, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("can't get transaction by hash: %w", err)
	}
	return tx, nil
}

func (r *transactionsRepo) FindBySender(ctx context.Context, sender common.Address, limit uint64) ([]*entity.Transaction, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"sender": sender}).
		OrderBy("created_at DESC").
		Limit(limit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	txs := make([]*entity.Transaction, 0, limit)
	err = r.db.SelectContext(ctx, &txs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find transactions by sender: %w", err)
	}
	return txs, nil
}
