package repository

import (
	"context"

	"github.com/omni/permission-relay/db"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/repository/postgres"
)

type Repo struct {
	Transactions      entity.TransactionsRepo
	RelayerOperations entity.RelayerOperationsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Transactions:      postgres.NewTransactionsRepo("transactions", db),
		RelayerOperations: postgres.NewRelayerOperationsRepo("relayer_operations", db),
	}
}

func (r *Repo) RecordTransaction(ctx context.Context, tx *entity.Transaction) error {
	return r.Transactions.Ensure(ctx, tx)
}

func (r *Repo) RecordOperation(ctx context.Context, op *entity.RelayerOperation) error {
	return r.RelayerOperations.Ensure(ctx, op)
}

func (r *Repo) Operations() entity.RelayerOperationsRepo {
	return r.RelayerOperations
}
