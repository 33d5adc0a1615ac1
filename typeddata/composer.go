package typeddata

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/sdkerrors"
)

type NonceSource interface {
	GetNonce(ctx context.Context, account common.Address, family entity.NonceFamily) (*big.Int, error)
}

type GranteeResolver interface {
	GranteeIDByAddress(ctx context.Context, grantee common.Address) (*big.Int, error)
}

type Domain struct {
	Name              string
	Version           string
	VerifyingContract common.Address
}

type ComposerConfig struct {
	ChainID           *big.Int
	PermissionsDomain Domain
	ServersDomain     Domain
}

type GrantInput struct {
	Grantee  common.Address
	GrantURL string
	FileIDs  []uint64
}

type AddServerInput struct {
	ServerAddress common.Address
	PublicKey     string
	ServerURL     string
}

type ServerFilesInput struct {
	Grantee         common.Address
	GrantURL        string
	FileURLs        []string
	SchemaIDs       []uint64
	ServerAddress   common.Address
	ServerURL       string
	ServerPublicKey string
	FilePermissions [][]contract.FilePermission
}

// Composer builds typed messages for signing. Composing twice without a
// submission in between yields two messages carrying the same nonce.
type Composer struct {
	cfg      ComposerConfig
	nonces   NonceSource
	grantees GranteeResolver
	logger   logging.Logger
}

func NewComposer(cfg ComposerConfig, nonces NonceSource, grantees GranteeResolver, logger logging.Logger) *Composer {
	return &Composer{
		cfg:      cfg,
		nonces:   nonces,
		grantees: grantees,
		logger:   logger,
	}
}

func (c *Composer) ComposeGrant(ctx context.Context, account common.Address, in *GrantInput) (*Message, error) {
	c.checkGrantURL(in.GrantURL)
	granteeID, err := c.resolveGrantee(ctx, in.Grantee)
	if err != nil {
		return nil, err
	}
	fileIDs := uintsToBig(in.FileIDs)
	return c.compose(ctx, OperationAddPermission, account, func(nonce *big.Int) (apitypes.TypedDataMessage, interface{}) {
		return apitypes.TypedDataMessage{
				"nonce":     nonce.String(),
				"granteeId": granteeID.String(),
				"grant":     in.GrantURL,
				"fileIds":   bigsToStrings(fileIDs),
			}, contract.PermissionInput{
				Nonce:     nonce,
				GranteeId: granteeID,
				Grant:     in.GrantURL,
				FileIds:   fileIDs,
			}
	})
}

func (c *Composer) ComposeRevoke(ctx context.Context, account common.Address, permissionID *big.Int) (*Message, error) {
	return c.compose(ctx, OperationRevokePermission, account, func(nonce *big.Int) (apitypes.TypedDataMessage, interface{}) {
		return apitypes.TypedDataMessage{
				"nonce":        nonce.String(),
				"permissionId": permissionID.String(),
			}, contract.RevokePermissionInput{
				Nonce:        nonce,
				PermissionId: permissionID,
			}
	})
}

func (c *Composer) ComposeTrustServer(ctx context.Context, account common.Address, serverID *big.Int) (*Message, error) {
	return c.composeServerTrust(ctx, OperationTrustServer, account, serverID)
}

func (c *Composer) ComposeUntrustServer(ctx context.Context, account common.Address, serverID *big.Int) (*Message, error) {
	return c.composeServerTrust(ctx, OperationUntrustServer, account, serverID)
}

func (c *Composer) composeServerTrust(ctx context.Context, op Operation, account common.Address, serverID *big.Int) (*Message, error) {
	return c.compose(ctx, op, account, func(nonce *big.Int) (apitypes.TypedDataMessage, interface{}) {
		return apitypes.TypedDataMessage{
				"nonce":    nonce.String(),
				"serverId": serverID.String(),
			}, contract.TrustServerInput{
				Nonce:    nonce,
				ServerId: serverID,
			}
	})
}

func (c *Composer) ComposeAddAndTrustServer(ctx context.Context, account common.Address, in *AddServerInput) (*Message, error) {
	return c.compose(ctx, OperationAddAndTrustServer, account, func(nonce *big.Int) (apitypes.TypedDataMessage, interface{}) {
		return apitypes.TypedDataMessage{
				"nonce":         nonce.String(),
				"serverAddress": in.ServerAddress.Hex(),
				"publicKey":     in.PublicKey,
				"serverUrl":     in.ServerURL,
			}, contract.AddServerInput{
				Nonce:         nonce,
				ServerAddress: in.ServerAddress,
				PublicKey:     in.PublicKey,
				ServerUrl:     in.ServerURL,
			}
	})
}

func (c *Composer) ComposeServerFilesAndPermission(ctx context.Context, account common.Address, in *ServerFilesInput) (*Message, error) {
	c.checkGrantURL(in.GrantURL)
	if len(in.FileURLs) != len(in.SchemaIDs) || len(in.FileURLs) != len(in.FilePermissions) {
		return nil, &sdkerrors.SerializationError{Message: "fileUrls, schemaIds and filePermissions must have the same length"}
	}
	granteeID, err := c.resolveGrantee(ctx, in.Grantee)
	if err != nil {
		return nil, err
	}
	schemaIDs := uintsToBig(in.SchemaIDs)
	fileURLs := make([]interface{}, len(in.FileURLs))
	for i, u := range in.FileURLs {
		fileURLs[i] = u
	}
	filePermissions := make([]interface{}, len(in.FilePermissions))
	for i, perms := range in.FilePermissions {
		row := make([]interface{}, len(perms))
		for j, p := range perms {
			row[j] = map[string]interface{}{
				"account": p.Account,
				"key":     p.Key,
			}
		}
		filePermissions[i] = row
	}
	return c.compose(ctx, OperationAddServerFilesAndPermissions, account, func(nonce *big.Int) (apitypes.TypedDataMessage, interface{}) {
		return apitypes.TypedDataMessage{
				"nonce":           nonce.String(),
				"granteeId":       granteeID.String(),
				"grant":           in.GrantURL,
				"fileUrls":        fileURLs,
				"schemaIds":       bigsToStrings(schemaIDs),
				"serverAddress":   in.ServerAddress.Hex(),
				"serverUrl":       in.ServerURL,
				"serverPublicKey": in.ServerPublicKey,
				"filePermissions": filePermissions,
			}, contract.ServerFilesAndPermissionInput{
				Nonce:           nonce,
				GranteeId:       granteeID,
				Grant:           in.GrantURL,
				FileUrls:        in.FileURLs,
				SchemaIds:       schemaIDs,
				ServerAddress:   in.ServerAddress,
				ServerUrl:       in.ServerURL,
				ServerPublicKey: in.ServerPublicKey,
				FilePermissions: in.FilePermissions,
			}
	})
}

func (c *Composer) compose(ctx context.Context, op Operation, account common.Address, build func(nonce *big.Int) (apitypes.TypedDataMessage, interface{})) (*Message, error) {
	def := operations[op]
	nonce, err := c.nonces.GetNonce(ctx, account, def.family)
	if err != nil {
		return nil, err
	}
	domain := c.cfg.PermissionsDomain
	if def.family == entity.NonceFamilyServers {
		domain = c.cfg.ServersDomain
	}

	types := apitypes.Types{"EIP712Domain": domainType}
	for name, fields := range def.types {
		types[name] = fields
	}
	body, input := build(nonce)

	c.logger.WithFields(logrus.Fields{
		"operation": op,
		"account":   account,
		"nonce":     nonce,
	}).Debug("composed typed message")

	return &Message{
		Operation: op,
		Account:   account,
		Nonce:     nonce,
		Contract:  def.contract,
		Method:    def.method,
		Input:     input,
		TypedData: apitypes.TypedData{
			Types:       types,
			PrimaryType: def.primaryType,
			Domain: apitypes.TypedDataDomain{
				Name:              domain.Name,
				Version:           domain.Version,
				ChainId:           (*math.HexOrDecimal256)(c.cfg.ChainID),
				VerifyingContract: domain.VerifyingContract.Hex(),
			},
			Message: body,
		},
	}, nil
}

func (c *Composer) resolveGrantee(ctx context.Context, grantee common.Address) (*big.Int, error) {
	id, err := c.grantees.GranteeIDByAddress(ctx, grantee)
	if err != nil {
		return nil, sdkerrors.WrapUnknown(err, "can't resolve grantee id")
	}
	if id == nil || id.Sign() == 0 {
		return nil, &sdkerrors.GranteeNotFoundError{Grantee: grantee}
	}
	return id, nil
}

// checkGrantURL warns about http gateway urls, on-chain references should use ipfs:// uris.
func (c *Composer) checkGrantURL(grantURL string) {
	if strings.Contains(grantURL, "/ipfs/") && !strings.HasPrefix(grantURL, "ipfs://") {
		c.logger.WithField("grant_url", grantURL).Warn("grant url uses an http gateway instead of an ipfs:// uri")
	}
}

func uintsToBig(values []uint64) []*big.Int {
	res := make([]*big.Int, len(values))
	for i, v := range values {
		res[i] = new(big.Int).SetUint64(v)
	}
	return res
}

func bigsToStrings(values []*big.Int) []interface{} {
	res := make([]interface{}, len(values))
	for i, v := range values {
		res[i] = v.String()
	}
	return res
}
