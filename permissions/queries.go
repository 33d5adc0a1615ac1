package permissions

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/batch"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/sdkerrors"
)

// Page is a window of a collection, a zero limit means the whole collection.
type Page struct {
	Offset uint64
	Limit  uint64
}

type TrustedServers struct {
	Servers    []*entity.TrustedServer `json:"servers"`
	TotalCount uint64                  `json:"totalCount"`
	HasMore    bool                    `json:"hasMore"`
	Failures   []batch.Failure         `json:"-"`
}

type UserPermissions struct {
	Permissions []*entity.Permission `json:"permissions"`
	TotalCount  uint64               `json:"totalCount"`
	HasMore     bool                 `json:"hasMore"`
	Failures    []batch.Failure      `json:"-"`
}

type Grantees struct {
	Grantees   []*entity.Grantee `json:"grantees"`
	TotalCount uint64            `json:"totalCount"`
	HasMore    bool              `json:"hasMore"`
	Failures   []batch.Failure   `json:"-"`
}

func (c *Controller) ids(ctx context.Context, kind batch.Kind, owner common.Address, page Page) (*batch.Page[*big.Int], error) {
	if page.Limit == 0 {
		return c.reader.FetchAll(ctx, kind, owner)
	}
	return c.reader.ReadPaginated(ctx, kind, owner, page.Offset, page.Limit)
}

func (c *Controller) TrustedServers(ctx context.Context, user common.Address, page Page) (*TrustedServers, error) {
	ids, err := c.ids(ctx, batch.KindTrustedServers, user, page)
	if err != nil {
		return nil, err
	}
	servers, failures, err := c.reader.TrustedServers(ctx, ids.Items)
	if err != nil {
		return nil, err
	}
	return &TrustedServers{
		Servers:    servers,
		TotalCount: ids.TotalCount,
		HasMore:    ids.HasMore,
		Failures:   append(ids.Failures, failures...),
	}, nil
}

func (c *Controller) Server(ctx context.Context, id *big.Int) (*entity.TrustedServer, error) {
	servers, failures, err := c.reader.TrustedServers(ctx, []*big.Int{id})
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		return nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("can't read server %s", id), Cause: failures[0].Err}
	}
	return servers[0], nil
}

func (c *Controller) UserPermissions(ctx context.Context, user common.Address, page Page) (*UserPermissions, error) {
	ids, err := c.ids(ctx, batch.KindUserPermissions, user, page)
	if err != nil {
		return nil, err
	}
	permissions, failures, err := c.reader.Permissions(ctx, ids.Items)
	if err != nil {
		return nil, err
	}
	return &UserPermissions{
		Permissions: permissions,
		TotalCount:  ids.TotalCount,
		HasMore:     ids.HasMore,
		Failures:    append(ids.Failures, failures...),
	}, nil
}

func (c *Controller) Grantees(ctx context.Context, page Page) (*Grantees, error) {
	ids, err := c.ids(ctx, batch.KindGrantees, common.Address{}, page)
	if err != nil {
		return nil, err
	}
	grantees, failures := c.reader.Grantees(ctx, ids.Items)
	return &Grantees{
		Grantees:   grantees,
		TotalCount: ids.TotalCount,
		HasMore:    ids.HasMore,
		Failures:   append(ids.Failures, failures...),
	}, nil
}

func (c *Controller) GranteeByAddress(ctx context.Context, grantee common.Address) (*entity.Grantee, error) {
	id, err := c.grantees.GranteeIDByAddress(ctx, grantee)
	if err != nil {
		return nil, sdkerrors.WrapUnknown(err, "can't resolve grantee id")
	}
	if id == nil || id.Sign() == 0 {
		return nil, &sdkerrors.GranteeNotFoundError{Grantee: grantee}
	}
	grantees, failures := c.reader.Grantees(ctx, []*big.Int{id})
	if len(failures) > 0 {
		return nil, sdkerrors.WrapUnknown(failures[0].Err, fmt.Sprintf("can't read grantee %s", id))
	}
	return grantees[0], nil
}

func (c *Controller) GranteePermissionIDs(ctx context.Context, granteeID *big.Int) (*batch.Page[*big.Int], error) {
	return c.reader.GranteePermissionIDs(ctx, granteeID)
}
