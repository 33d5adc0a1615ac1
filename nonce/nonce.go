package nonce

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/sdkerrors"
)

// Reader is implemented by every contract exposing a userNonce(address) counter.
type Reader interface {
	UserNonce(ctx context.Context, user common.Address) (*big.Int, error)
}

// Source reads replay protection counters. It never retries, a stale read
// has to surface as a contract level rejection at submission time.
type Source struct {
	readers map[entity.NonceFamily]Reader
}

func NewSource(permissions, servers Reader) *Source {
	return &Source{
		readers: map[entity.NonceFamily]Reader{
			entity.NonceFamilyPermissions: permissions,
			entity.NonceFamilyServers:     servers,
		},
	}
}

func (s *Source) GetNonce(ctx context.Context, account common.Address, family entity.NonceFamily) (*big.Int, error) {
	reader, ok := s.readers[family]
	if !ok || reader == nil {
		return nil, &sdkerrors.NonceError{
			Account: account,
			Family:  string(family),
			Cause:   fmt.Errorf("unknown nonce family %q", family),
		}
	}
	n, err := reader.UserNonce(ctx, account)
	if err != nil {
		return nil, &sdkerrors.NonceError{Account: account, Family: string(family), Cause: err}
	}
	return n, nil
}
