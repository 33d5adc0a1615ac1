package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type SubmissionPath string

const (
	SubmissionPathDirect  SubmissionPath = "direct"
	SubmissionPathRelayer SubmissionPath = "relayer"
)

type Transaction struct {
	ID        uint           `db:"id"`
	Hash      common.Hash    `db:"hash"`
	Sender    common.Address `db:"sender"`
	Contract  string         `db:"contract"`
	Function  string         `db:"function"`
	Operation string         `db:"operation"`
	Path      SubmissionPath `db:"path"`
	CreatedAt *time.Time     `db:"created_at"`
	UpdatedAt *time.Time     `db:"updated_at"`
}

type TransactionsRepo interface {
	Ensure(ctx context.Context, tx *Transaction) error
	GetByHash(ctx context.Context, hash common.Hash) (*Transaction, error)
	FindBySender(ctx context.Context, sender common.Address, limit uint64) ([]*Transaction, error)
}
