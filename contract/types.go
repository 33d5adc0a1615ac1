package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Field names follow the abi tuple component names, the abi package matches them by name.

type PermissionInput struct {
	Nonce     *big.Int
	GranteeId *big.Int //nolint:revive,stylecheck
	Grant     string
	FileIds   []*big.Int //nolint:revive,stylecheck
}

type RevokePermissionInput struct {
	Nonce        *big.Int
	PermissionId *big.Int //nolint:revive,stylecheck
}

type TrustServerInput struct {
	Nonce    *big.Int
	ServerId *big.Int //nolint:revive,stylecheck
}

type UntrustServerInput = TrustServerInput

type AddServerInput struct {
	Nonce         *big.Int
	ServerAddress common.Address
	PublicKey     string
	ServerUrl     string //nolint:revive,stylecheck
}

type FilePermission struct {
	Account string
	Key     string
}

type ServerFilesAndPermissionInput struct {
	Nonce           *big.Int
	GranteeId       *big.Int //nolint:revive,stylecheck
	Grant           string
	FileUrls        []string   //nolint:revive,stylecheck
	SchemaIds       []*big.Int //nolint:revive,stylecheck
	ServerAddress   common.Address
	ServerUrl       string //nolint:revive,stylecheck
	ServerPublicKey string
	FilePermissions [][]FilePermission
}

type PermissionInfo struct {
	Id         *big.Int //nolint:revive,stylecheck
	Grantor    common.Address
	Nonce      *big.Int
	GranteeId  *big.Int //nolint:revive,stylecheck
	Grant      string
	StartBlock *big.Int
	EndBlock   *big.Int
	FileIds    []*big.Int //nolint:revive,stylecheck
}

type ServerInfo struct {
	Id            *big.Int //nolint:revive,stylecheck
	Owner         common.Address
	ServerAddress common.Address
	PublicKey     string
	Url           string //nolint:revive,stylecheck
}

type GranteeInfo struct {
	Owner          common.Address
	GranteeAddress common.Address
	PublicKey      string
	PermissionIds  []*big.Int //nolint:revive,stylecheck
}

type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type Result3 struct {
	Success    bool
	ReturnData []byte
}
