package batch

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/sdkerrors"
)

type Kind string

const (
	KindTrustedServers  Kind = "trusted_servers"
	KindUserPermissions Kind = "user_permissions"
	KindGrantees        Kind = "grantees"
)

var ErrUnknownKind = errors.New("unknown collection kind")

type Page[T any] struct {
	Items      []T
	TotalCount uint64
	HasMore    bool
	Failures   []Failure
}

type Contracts struct {
	Permissions *contract.DataPermissionsContract
	Servers     *contract.ServersContract
	Grantees    *contract.GranteesContract
}

type Reader struct {
	caller    Multicaller
	contracts Contracts
	batchSize uint64
	logger    logging.Logger
}

func NewReader(caller Multicaller, contracts Contracts, batchSize uint64, logger logging.Logger) *Reader {
	if batchSize == 0 {
		batchSize = 100
	}
	return &Reader{
		caller:    caller,
		contracts: contracts,
		batchSize: batchSize,
		logger:    logger,
	}
}

// collection describes how to count and index one paginated id collection.
type collection struct {
	contract *contract.Contract
	count    func() (string, []interface{})
	at       func(index uint64) (string, []interface{})
}

func (r *Reader) collection(kind Kind, owner common.Address) (*collection, error) {
	switch kind {
	case KindTrustedServers:
		return &collection{
			contract: r.contracts.Servers.Contract,
			count:    func() (string, []interface{}) { return "userServerIdsLength", []interface{}{owner} },
			at: func(i uint64) (string, []interface{}) {
				return "userServerIdsAt", []interface{}{owner, new(big.Int).SetUint64(i)}
			},
		}, nil
	case KindUserPermissions:
		return &collection{
			contract: r.contracts.Permissions.Contract,
			count:    func() (string, []interface{}) { return "userPermissionIdsLength", []interface{}{owner} },
			at: func(i uint64) (string, []interface{}) {
				return "userPermissionIdsAt", []interface{}{owner, new(big.Int).SetUint64(i)}
			},
		}, nil
	case KindGrantees:
		// grantee ids are assigned sequentially starting from 1
		return &collection{
			contract: r.contracts.Grantees.Contract,
			count:    func() (string, []interface{}) { return "granteesCount", nil },
			at: func(i uint64) (string, []interface{}) {
				return "", []interface{}{new(big.Int).SetUint64(i + 1)}
			},
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", kind, ErrUnknownKind)
}

// ReadPaginated reads ids of the collection in [offset, offset+limit).
// Windows wider than the batch size are read in sequential multicalls, the total
// count is fetched within the first of them.
func (r *Reader) ReadPaginated(ctx context.Context, kind Kind, owner common.Address, offset, limit uint64) (*Page[*big.Int], error) {
	coll, err := r.collection(kind, owner)
	if err != nil {
		return nil, err
	}

	res := new(Page[*big.Int])
	var total *uint64
	for remaining := limit; ; {
		size := min(remaining, r.batchSize)
		page, err := r.readPage(ctx, kind, coll, offset, size, total)
		if err != nil {
			return nil, err
		}
		total = &page.TotalCount
		res.TotalCount = page.TotalCount
		res.HasMore = page.HasMore
		res.Items = append(res.Items, page.Items...)
		res.Failures = append(res.Failures, page.Failures...)

		offset += size
		remaining -= size
		if remaining == 0 || offset >= page.TotalCount {
			break
		}
	}
	return res, nil
}

// FetchAll reads the whole collection in sequential batches of the configured size.
// Only the first batch fetches the total count. Iteration stops on a short batch
// or once the offset reaches the total, whatever hasMore says.
func (r *Reader) FetchAll(ctx context.Context, kind Kind, owner common.Address) (*Page[*big.Int], error) {
	coll, err := r.collection(kind, owner)
	if err != nil {
		return nil, err
	}

	res := new(Page[*big.Int])
	var total *uint64
	for offset := uint64(0); ; {
		page, err := r.readPage(ctx, kind, coll, offset, r.batchSize, total)
		if err != nil {
			return nil, err
		}
		total = &page.TotalCount
		res.TotalCount = page.TotalCount
		res.Items = append(res.Items, page.Items...)
		res.Failures = append(res.Failures, page.Failures...)

		fetched := uint64(len(page.Items) + len(page.Failures))
		offset += fetched
		if fetched < r.batchSize || offset >= page.TotalCount {
			break
		}
	}
	return res, nil
}

func (r *Reader) readPage(ctx context.Context, kind Kind, coll *collection, offset, limit uint64, knownTotal *uint64) (*Page[*big.Int], error) {
	logger := r.logger.WithFields(logrus.Fields{
		"kind":   kind,
		"offset": offset,
		"limit":  limit,
	})

	if knownTotal != nil {
		if offset >= *knownTotal {
			return &Page[*big.Int]{TotalCount: *knownTotal}, nil
		}
		limit = min(limit, *knownTotal-offset)
	}

	calls := make([]Call, 0, limit+1)
	if knownTotal == nil {
		method, args := coll.count()
		data, err := coll.contract.Pack(method, args...)
		if err != nil {
			return nil, &sdkerrors.SerializationError{Message: "can't encode count call", Cause: err}
		}
		calls = append(calls, Call{Target: coll.contract.Address(), Data: data})
	}
	first := len(calls)

	// grantee ids need no lookup, they are derived from the index
	if kind != KindGrantees {
		for i := offset; i < offset+limit; i++ {
			method, args := coll.at(i)
			data, err := coll.contract.Pack(method, args...)
			if err != nil {
				return nil, &sdkerrors.SerializationError{Message: "can't encode item call", Cause: err}
			}
			calls = append(calls, Call{Target: coll.contract.Address(), Data: data})
		}
	}

	var results []Result
	if len(calls) > 0 {
		Batches.WithLabelValues(string(kind)).Inc()
		var err error
		results, err = r.caller.Multicall(ctx, calls)
		if err != nil {
			return nil, sdkerrors.WrapUnknown(err, fmt.Sprintf("can't read %s batch", kind))
		}
		if len(results) != len(calls) {
			return nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("multicall returned %d results for %d calls", len(results), len(calls))}
		}
	}

	page := new(Page[*big.Int])
	if knownTotal != nil {
		page.TotalCount = *knownTotal
	} else {
		method, _ := coll.count()
		if !results[0].Success {
			return nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("%s call failed", method), Cause: results[0].Err}
		}
		total, err := contract.UnpackUint(coll.contract, method, results[0].Data)
		if err != nil {
			return nil, &sdkerrors.BlockchainError{Message: fmt.Sprintf("can't decode %s", method), Cause: err}
		}
		page.TotalCount = total.Uint64()
	}

	end := min(offset+limit, page.TotalCount)
	if kind == KindGrantees {
		for i := offset; i < end; i++ {
			_, args := coll.at(i)
			page.Items = append(page.Items, args[0].(*big.Int))
		}
	} else {
		for i := offset; i < end; i++ {
			res := results[first+int(i-offset)]
			method, _ := coll.at(i)
			var id *big.Int
			err := res.Err
			if res.Success {
				id, err = contract.UnpackUint(coll.contract, method, res.Data)
			} else if err == nil {
				err = fmt.Errorf("%s(%d) failed", method, i)
			}
			if err != nil {
				ItemFailures.WithLabelValues(string(kind)).Inc()
				logger.WithError(err).WithField("index", i).Warn("can't read collection item")
				page.Failures = append(page.Failures, Failure{Index: i, Key: fmt.Sprintf("%s[%d]", kind, i), Err: err})
				continue
			}
			page.Items = append(page.Items, id)
		}
	}
	page.HasMore = end < page.TotalCount
	return page, nil
}
