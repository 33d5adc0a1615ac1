package presenter

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/batch"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/permissions"
)

type FailureInfo struct {
	Index uint64 `json:"index"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

type TrustedServersResult struct {
	*permissions.TrustedServers
	Failures []FailureInfo `json:"failures,omitempty"`
}

type UserPermissionsResult struct {
	*permissions.UserPermissions
	Failures []FailureInfo `json:"failures,omitempty"`
}

type GranteesResult struct {
	*permissions.Grantees
	Failures []FailureInfo `json:"failures,omitempty"`
}

type GranteePermissionsResult struct {
	GranteeID     *big.Int   `json:"granteeId"`
	PermissionIDs []*big.Int `json:"permissionIds"`
	TotalCount    uint64     `json:"totalCount"`
	HasMore       bool       `json:"hasMore"`
}

type OperationInfo struct {
	OperationID string                        `json:"operationId"`
	Status      entity.RelayerOperationStatus `json:"status"`
	Hash        *common.Hash                  `json:"hash,omitempty"`
	Error       *string                       `json:"error,omitempty"`
	Operation   string                        `json:"operation"`
	Account     common.Address                `json:"account"`
	Contract    string                        `json:"contract"`
	Function    string                        `json:"function"`
	CreatedAt   *time.Time                    `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time                    `json:"updatedAt,omitempty"`
}

func failuresToInfo(failures []batch.Failure) []FailureInfo {
	if len(failures) == 0 {
		return nil
	}
	res := make([]FailureInfo, len(failures))
	for i, f := range failures {
		res[i] = FailureInfo{Index: f.Index, Key: f.Key, Error: f.Err.Error()}
	}
	return res
}

func operationToInfo(op *entity.RelayerOperation) *OperationInfo {
	return &OperationInfo{
		OperationID: op.OperationID,
		Status:      op.Status,
		Hash:        op.Hash,
		Error:       op.Error,
		Operation:   op.Operation,
		Account:     op.Account,
		Contract:    op.Contract,
		Function:    op.Function,
		CreatedAt:   op.CreatedAt,
		UpdatedAt:   op.UpdatedAt,
	}
}
