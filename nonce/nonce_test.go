package nonce_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/nonce"
	"github.com/omni/permission-relay/sdkerrors"
)

type counter struct {
	values map[common.Address]int64
	err    error
	calls  int
}

func (c *counter) UserNonce(_ context.Context, user common.Address) (*big.Int, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return big.NewInt(c.values[user]), nil
}

func TestSource_GetNonce(t *testing.T) {
	t.Parallel()

	user := common.HexToAddress("0xaaa")
	permissions := &counter{values: map[common.Address]int64{user: 4}}
	servers := &counter{values: map[common.Address]int64{user: 11}}
	src := nonce.NewSource(permissions, servers)

	n, err := src.GetNonce(context.Background(), user, entity.NonceFamilyPermissions)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(4), n)

	n, err = src.GetNonce(context.Background(), user, entity.NonceFamilyServers)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(11), n)

	_, err = src.GetNonce(context.Background(), user, "unknown")
	var nonceErr *sdkerrors.NonceError
	require.ErrorAs(t, err, &nonceErr)
}

func TestSource_GetNonceFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	cause := errors.New("rpc unavailable")
	permissions := &counter{err: cause}
	src := nonce.NewSource(permissions, &counter{})

	_, err := src.GetNonce(context.Background(), common.HexToAddress("0xaaa"), entity.NonceFamilyPermissions)
	var nonceErr *sdkerrors.NonceError
	require.ErrorAs(t, err, &nonceErr)
	require.Equal(t, "permissions", nonceErr.Family)
	require.ErrorIs(t, err, cause)
	require.Equal(t, 1, permissions.calls)
}
