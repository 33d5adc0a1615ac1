package permissions

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/events"
	"github.com/omni/permission-relay/grantfile"
	"github.com/omni/permission-relay/typeddata"
)

type GrantResult struct {
	Transaction  *events.TransactionResult
	PermissionID *big.Int
	User         common.Address
	GranteeID    *big.Int
	GrantURL     string
	FileIDs      []*big.Int
}

type Preview struct {
	Grantee    common.Address
	Operation  string
	Files      []uint64
	FileCount  int
	Parameters map[string]interface{}
	Expires    *int64
}

// PendingGrant is a validated grant awaiting confirmation. Nothing is signed,
// stored or submitted before Confirm is called.
type PendingGrant struct {
	c       *Controller
	account common.Address
	grant   *entity.PermissionGrant
	file    *grantfile.GrantFile
	opts    *TxOptions

	mu     sync.Mutex
	result *GrantResult
}

func (c *Controller) PrepareGrant(_ context.Context, grant *entity.PermissionGrant, opts *TxOptions) (*PendingGrant, error) {
	account, err := c.account(opts)
	if err != nil {
		return nil, err
	}
	file, err := c.grantFiles.Build(grant)
	if err != nil {
		return nil, err
	}
	return &PendingGrant{
		c:       c,
		account: account,
		grant:   grant,
		file:    file,
		opts:    opts,
	}, nil
}

func (p *PendingGrant) Preview() Preview {
	return Preview{
		Grantee:    p.file.Grantee,
		Operation:  p.file.Operation,
		Files:      p.file.Files,
		FileCount:  len(p.file.Files),
		Parameters: p.file.Parameters,
		Expires:    p.file.Expires,
	}
}

// Confirm stores the grant file, signs and submits the permission and waits for
// the PermissionAdded event. Once it succeeds further calls return the same result.
func (p *PendingGrant) Confirm(ctx context.Context) (*GrantResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.result != nil {
		return p.result, nil
	}
	res, err := p.c.confirmGrant(ctx, p.account, p.grant, p.file, p.opts)
	if err != nil {
		return nil, err
	}
	p.result = res
	return res, nil
}

// Grant is PrepareGrant followed by Confirm.
func (c *Controller) Grant(ctx context.Context, grant *entity.PermissionGrant, opts *TxOptions) (*GrantResult, error) {
	pending, err := c.PrepareGrant(ctx, grant, opts)
	if err != nil {
		return nil, err
	}
	return pending.Confirm(ctx)
}

func (c *Controller) confirmGrant(ctx context.Context, account common.Address, grant *entity.PermissionGrant, file *grantfile.GrantFile, opts *TxOptions) (*GrantResult, error) {
	grantURL, err := c.grantFiles.Store(ctx, file, grant.GrantURL)
	if err != nil {
		return nil, err
	}
	tx, err := c.submit(ctx, typeddata.OperationAddPermission, account, func(ctx context.Context, account common.Address) (*typeddata.Message, error) {
		return c.composer.ComposeGrant(ctx, account, &typeddata.GrantInput{
			Grantee:  grant.Grantee,
			GrantURL: grantURL,
			FileIDs:  grant.Files,
		})
	}, opts)
	if err != nil {
		return nil, err
	}
	return c.permissionAdded(ctx, tx, grantURL)
}

type ServerFilesParams struct {
	Grant           *entity.PermissionGrant
	FileURLs        []string
	SchemaIDs       []uint64
	ServerAddress   common.Address
	ServerURL       string
	ServerPublicKey string
	FilePermissions [][]contract.FilePermission
}

// SubmitServerFilesAndPermissions registers files, trusts the server and grants
// the permission in one signed message.
func (c *Controller) SubmitServerFilesAndPermissions(ctx context.Context, params *ServerFilesParams, opts *TxOptions) (*GrantResult, error) {
	account, err := c.account(opts)
	if err != nil {
		return nil, err
	}
	file, err := c.grantFiles.Build(params.Grant)
	if err != nil {
		return nil, err
	}
	grantURL, err := c.grantFiles.Store(ctx, file, params.Grant.GrantURL)
	if err != nil {
		return nil, err
	}
	tx, err := c.submit(ctx, typeddata.OperationAddServerFilesAndPermissions, account, func(ctx context.Context, account common.Address) (*typeddata.Message, error) {
		return c.composer.ComposeServerFilesAndPermission(ctx, account, &typeddata.ServerFilesInput{
			Grantee:         params.Grant.Grantee,
			GrantURL:        grantURL,
			FileURLs:        params.FileURLs,
			SchemaIDs:       params.SchemaIDs,
			ServerAddress:   params.ServerAddress,
			ServerURL:       params.ServerURL,
			ServerPublicKey: params.ServerPublicKey,
			FilePermissions: params.FilePermissions,
		})
	}, opts)
	if err != nil {
		return nil, err
	}
	return c.permissionAdded(ctx, tx, grantURL)
}

func (c *Controller) permissionAdded(ctx context.Context, tx *events.TransactionResult, grantURL string) (*GrantResult, error) {
	event, err := c.resolver.ResolveExpectedEvent(ctx, tx, typeddata.OperationAddPermission.ExpectedEvent())
	if err != nil {
		return nil, err
	}
	added, err := events.DecodePermissionAdded(event)
	if err != nil {
		return nil, err
	}
	return &GrantResult{
		Transaction:  tx,
		PermissionID: added.PermissionID,
		User:         added.User,
		GranteeID:    added.GranteeID,
		GrantURL:     grantURL,
		FileIDs:      added.FileIDs,
	}, nil
}
