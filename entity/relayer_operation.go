package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type RelayerOperationStatus string

const (
	RelayerOperationPending   RelayerOperationStatus = "pending"
	RelayerOperationConfirmed RelayerOperationStatus = "confirmed"
	RelayerOperationFailed    RelayerOperationStatus = "failed"
)

type RelayerOperation struct {
	OperationID string                 `db:"operation_id"`
	Account     common.Address         `db:"account"`
	Contract    string                 `db:"contract"`
	Function    string                 `db:"function"`
	Operation   string                 `db:"operation"`
	Status      RelayerOperationStatus `db:"status"`
	Hash        *common.Hash           `db:"hash"`
	Error       *string                `db:"error"`
	CreatedAt   *time.Time             `db:"created_at"`
	UpdatedAt   *time.Time             `db:"updated_at"`
}

type RelayerOperationsRepo interface {
	Ensure(ctx context.Context, op *RelayerOperation) error
	GetByOperationID(ctx context.Context, operationID string) (*RelayerOperation, error)
	FindPending(ctx context.Context, olderThan time.Time) ([]*RelayerOperation, error)
}
