package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type NonceFamily string

const (
	NonceFamilyPermissions NonceFamily = "permissions"
	NonceFamilyServers     NonceFamily = "servers"
)

// PermissionGrant is the off-chain description of a data access grant.
// Only its storage url and content hash end up on-chain.
type PermissionGrant struct {
	Grantee    common.Address
	Operation  string
	Files      []uint64
	Parameters map[string]interface{}
	Expires    *int64
	GrantURL   string
}

type Permission struct {
	ID         *big.Int       `json:"id"`
	Grantor    common.Address `json:"grantor"`
	Nonce      *big.Int       `json:"nonce"`
	GranteeID  *big.Int       `json:"granteeId"`
	Grant      string         `json:"grant"`
	FileIDs    []*big.Int     `json:"fileIds"`
	StartBlock *big.Int       `json:"startBlock"`
	EndBlock   *big.Int       `json:"endBlock"`
	// Active reports the absence of an expiration, not validity at the current block.
	Active bool `json:"active"`
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func HasNoExpiration(endBlock *big.Int) bool {
	return endBlock == nil || endBlock.Sign() == 0 || endBlock.Cmp(maxUint256) == 0
}

type TrustedServer struct {
	ID            *big.Int       `json:"id"`
	Owner         common.Address `json:"owner"`
	ServerAddress common.Address `json:"serverAddress"`
	PublicKey     string         `json:"publicKey"`
	URL           string         `json:"url"`
}

type Grantee struct {
	ID             *big.Int       `json:"id"`
	Owner          common.Address `json:"owner"`
	GranteeAddress common.Address `json:"granteeAddress"`
	PublicKey      string         `json:"publicKey"`
	PermissionIDs  []*big.Int     `json:"permissionIds"`
}
