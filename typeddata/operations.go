package typeddata

import (
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/contract/abi"
	"github.com/omni/permission-relay/entity"
)

type Operation string

const (
	OperationAddPermission                Operation = "submitAddPermission"
	OperationRevokePermission             Operation = "submitPermissionRevoke"
	OperationTrustServer                  Operation = "submitTrustServer"
	OperationUntrustServer                Operation = "submitUntrustServer"
	OperationAddAndTrustServer            Operation = "submitAddAndTrustServer"
	OperationAddServerFilesAndPermissions Operation = "submitAddServerFilesAndPermissions"
)

type operationDef struct {
	family      entity.NonceFamily
	primaryType string
	types       apitypes.Types
	contract    string
	method      string
	event       string
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Field order and types must match the structs hashed by the verifying contracts.
var operations = map[Operation]operationDef{
	OperationAddPermission: {
		family:      entity.NonceFamilyPermissions,
		primaryType: "Permission",
		types: apitypes.Types{
			"Permission": {
				{Name: "nonce", Type: "uint256"},
				{Name: "granteeId", Type: "uint256"},
				{Name: "grant", Type: "string"},
				{Name: "fileIds", Type: "uint256[]"},
			},
		},
		contract: contract.DataPermissionsName,
		method:   "addPermission",
		event:    abi.PermissionAdded,
	},
	OperationRevokePermission: {
		family:      entity.NonceFamilyPermissions,
		primaryType: "RevokePermission",
		types: apitypes.Types{
			"RevokePermission": {
				{Name: "nonce", Type: "uint256"},
				{Name: "permissionId", Type: "uint256"},
			},
		},
		contract: contract.DataPermissionsName,
		method:   "revokePermissionWithSignature",
		event:    abi.PermissionRevoked,
	},
	OperationTrustServer: {
		family:      entity.NonceFamilyServers,
		primaryType: "TrustServer",
		types: apitypes.Types{
			"TrustServer": {
				{Name: "nonce", Type: "uint256"},
				{Name: "serverId", Type: "uint256"},
			},
		},
		contract: contract.ServersName,
		method:   "trustServerWithSignature",
		event:    abi.ServerTrusted,
	},
	OperationUntrustServer: {
		family:      entity.NonceFamilyServers,
		primaryType: "UntrustServer",
		types: apitypes.Types{
			"UntrustServer": {
				{Name: "nonce", Type: "uint256"},
				{Name: "serverId", Type: "uint256"},
			},
		},
		contract: contract.ServersName,
		method:   "untrustServerWithSignature",
		event:    abi.ServerUntrusted,
	},
	OperationAddAndTrustServer: {
		family:      entity.NonceFamilyServers,
		primaryType: "AddServer",
		types: apitypes.Types{
			"AddServer": {
				{Name: "nonce", Type: "uint256"},
				{Name: "serverAddress", Type: "address"},
				{Name: "publicKey", Type: "string"},
				{Name: "serverUrl", Type: "string"},
			},
		},
		contract: contract.ServersName,
		method:   "addAndTrustServerWithSignature",
		event:    abi.ServerTrusted,
	},
	OperationAddServerFilesAndPermissions: {
		family:      entity.NonceFamilyPermissions,
		primaryType: "ServerFilesAndPermission",
		types: apitypes.Types{
			"ServerFilesAndPermission": {
				{Name: "nonce", Type: "uint256"},
				{Name: "granteeId", Type: "uint256"},
				{Name: "grant", Type: "string"},
				{Name: "fileUrls", Type: "string[]"},
				{Name: "schemaIds", Type: "uint256[]"},
				{Name: "serverAddress", Type: "address"},
				{Name: "serverUrl", Type: "string"},
				{Name: "serverPublicKey", Type: "string"},
				{Name: "filePermissions", Type: "Permission[][]"},
			},
			"Permission": {
				{Name: "account", Type: "string"},
				{Name: "key", Type: "string"},
			},
		},
		contract: contract.DataPermissionsName,
		method:   "addServerFilesAndPermissions",
		event:    abi.PermissionAdded,
	},
}

func (o Operation) Family() entity.NonceFamily {
	return operations[o].family
}

// ExpectedEvent is the event emitted by a successful submission of the operation.
func (o Operation) ExpectedEvent() string {
	return operations[o].event
}

func (o Operation) Valid() bool {
	_, ok := operations[o]
	return ok
}
