package batch

import (
	"context"
	"fmt"
	"math/big"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/sdkerrors"
)

// multicallDetails fetches one record per id in a single multicall per batch.
func multicallDetails[T any](ctx context.Context, r *Reader, kind Kind, c *contract.Contract, method string, ids []*big.Int, decode func(id *big.Int, data []byte) (T, error)) ([]T, []Failure, error) {
	var (
		items    []T
		failures []Failure
	)
	for start := 0; start < len(ids); start += int(r.batchSize) {
		end := min(start+int(r.batchSize), len(ids))
		calls := make([]Call, 0, end-start)
		for _, id := range ids[start:end] {
			data, err := c.Pack(method, id)
			if err != nil {
				return nil, nil, &sdkerrors.SerializationError{Message: "can't encode detail call", Cause: err}
			}
			calls = append(calls, Call{Target: c.Address(), Data: data})
		}

		Batches.WithLabelValues(string(kind)).Inc()
		results, err := r.caller.Multicall(ctx, calls)
		if err != nil {
			return nil, nil, sdkerrors.WrapUnknown(err, fmt.Sprintf("can't read %s details", kind))
		}
		if len(results) != len(calls) {
			return nil, nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("multicall returned %d results for %d calls", len(results), len(calls))}
		}

		for i, res := range results {
			id := ids[start+i]
			var item T
			err = res.Err
			if res.Success {
				item, err = decode(id, res.Data)
			} else if err == nil {
				err = fmt.Errorf("%s(%s) failed", method, id)
			}
			if err != nil {
				ItemFailures.WithLabelValues(string(kind)).Inc()
				r.logger.WithError(err).WithField("id", id.String()).Warn("can't read record details")
				failures = append(failures, Failure{Index: uint64(start + i), Key: id.String(), Err: err})
				continue
			}
			items = append(items, item)
		}
	}
	return items, failures, nil
}

func (r *Reader) TrustedServers(ctx context.Context, ids []*big.Int) ([]*entity.TrustedServer, []Failure, error) {
	servers := r.contracts.Servers
	return multicallDetails(ctx, r, KindTrustedServers, servers.Contract, "servers", ids, func(id *big.Int, data []byte) (*entity.TrustedServer, error) {
		info, err := servers.UnpackServer(data)
		if err != nil {
			return nil, err
		}
		return &entity.TrustedServer{
			ID:            id,
			Owner:         info.Owner,
			ServerAddress: info.ServerAddress,
			PublicKey:     info.PublicKey,
			URL:           info.Url,
		}, nil
	})
}

func (r *Reader) Permissions(ctx context.Context, ids []*big.Int) ([]*entity.Permission, []Failure, error) {
	permissions := r.contracts.Permissions
	return multicallDetails(ctx, r, KindUserPermissions, permissions.Contract, "permissions", ids, func(id *big.Int, data []byte) (*entity.Permission, error) {
		info, err := permissions.UnpackPermission(data)
		if err != nil {
			return nil, err
		}
		return &entity.Permission{
			ID:         id,
			Grantor:    info.Grantor,
			Nonce:      info.Nonce,
			GranteeID:  info.GranteeId,
			Grant:      info.Grant,
			FileIDs:    info.FileIds,
			StartBlock: info.StartBlock,
			EndBlock:   info.EndBlock,
			Active:     entity.HasNoExpiration(info.EndBlock),
		}, nil
	})
}

// Grantees resolves grantee records concurrently, one call per grantee.
func (r *Reader) Grantees(ctx context.Context, ids []*big.Int) ([]*entity.Grantee, []Failure) {
	grantees := r.contracts.Grantees
	items, failures := FanOut(ctx, ids, func(ctx context.Context, id *big.Int) (*entity.Grantee, error) {
		info, err := grantees.Grantee(ctx, id)
		if err != nil {
			return nil, err
		}
		return &entity.Grantee{
			ID:             id,
			Owner:          info.Owner,
			GranteeAddress: info.GranteeAddress,
			PublicKey:      info.PublicKey,
			PermissionIDs:  info.PermissionIds,
		}, nil
	}, (*big.Int).String)
	for _, f := range failures {
		ItemFailures.WithLabelValues(string(KindGrantees)).Inc()
		r.logger.WithError(f.Err).WithField("id", f.Key).Warn("can't read grantee")
	}
	return items, failures
}

// GranteePermissionIDs pages through the permission ids of a grantee using the
// contract side pagination. The loop stops on a short page or once the offset
// reaches the reported total, the contract may report hasMore on its last page.
func (r *Reader) GranteePermissionIDs(ctx context.Context, granteeID *big.Int) (*Page[*big.Int], error) {
	res := new(Page[*big.Int])
	for offset := uint64(0); ; {
		ids, total, hasMore, err := r.contracts.Grantees.GranteePermissionIDsPaginated(ctx, granteeID, offset, r.batchSize)
		if err != nil {
			return nil, sdkerrors.WrapUnknown(err, fmt.Sprintf("can't read permissions of grantee %s", granteeID))
		}
		res.Items = append(res.Items, ids...)
		res.TotalCount = total
		offset += uint64(len(ids))
		if !hasMore || uint64(len(ids)) < r.batchSize || offset >= total {
			break
		}
	}
	return res, nil
}
