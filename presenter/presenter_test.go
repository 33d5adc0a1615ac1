package presenter_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/permission-relay/batch"
	"github.com/omni/permission-relay/db"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/permissions"
	"github.com/omni/permission-relay/presenter"
	"github.com/omni/permission-relay/sdkerrors"
)

var user = common.HexToAddress("0x00000000000000000000000000000000000A11CE")

type fakeQueries struct {
	pages []permissions.Page
	err   error
}

func (q *fakeQueries) TrustedServers(_ context.Context, owner common.Address, page permissions.Page) (*permissions.TrustedServers, error) {
	q.pages = append(q.pages, page)
	if q.err != nil {
		return nil, q.err
	}
	return &permissions.TrustedServers{
		Servers: []*entity.TrustedServer{
			{ID: big.NewInt(7), Owner: owner, URL: "https://server.example"},
		},
		TotalCount: 2,
		HasMore:    true,
		Failures:   []batch.Failure{{Index: 1, Key: "8", Err: errors.New("execution reverted")}},
	}, nil
}

func (q *fakeQueries) UserPermissions(_ context.Context, owner common.Address, page permissions.Page) (*permissions.UserPermissions, error) {
	q.pages = append(q.pages, page)
	if q.err != nil {
		return nil, q.err
	}
	return &permissions.UserPermissions{
		Permissions: []*entity.Permission{
			{ID: big.NewInt(1), Grantor: owner, Grant: "ipfs://grant", Active: true},
		},
		TotalCount: 1,
	}, nil
}

func (q *fakeQueries) Grantees(_ context.Context, page permissions.Page) (*permissions.Grantees, error) {
	q.pages = append(q.pages, page)
	return &permissions.Grantees{TotalCount: 0}, q.err
}

func (q *fakeQueries) GranteePermissionIDs(_ context.Context, granteeID *big.Int) (*batch.Page[*big.Int], error) {
	if q.err != nil {
		return nil, q.err
	}
	return &batch.Page[*big.Int]{
		Items:      []*big.Int{big.NewInt(granteeID.Int64() * 10)},
		TotalCount: 1,
	}, nil
}

func (q *fakeQueries) Operation(_ context.Context, operationID string) (*entity.RelayerOperation, error) {
	if q.err != nil {
		return nil, q.err
	}
	hash := common.HexToHash("0xc0ffee")
	return &entity.RelayerOperation{
		OperationID: operationID,
		Status:      entity.RelayerOperationConfirmed,
		Hash:        &hash,
		Operation:   "submitAddPermission",
	}, nil
}

func serve(t *testing.T, q *fakeQueries, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	p := presenter.NewPresenter(logging.NewNop(), q)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestPresenter_TrustedServers(t *testing.T) {
	t.Parallel()

	q := new(fakeQueries)
	rec, body := serve(t, q, "/users/"+user.Hex()+"/servers?offset=1&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []permissions.Page{{Offset: 1, Limit: 1}}, q.pages)

	require.EqualValues(t, 2, body["totalCount"])
	require.Equal(t, true, body["hasMore"])
	servers := body["servers"].([]interface{})
	require.Len(t, servers, 1)
	require.Equal(t, "https://server.example", servers[0].(map[string]interface{})["url"])
	failures := body["failures"].([]interface{})
	require.Len(t, failures, 1)
	require.Equal(t, "8", failures[0].(map[string]interface{})["key"])
}

func TestPresenter_UserPermissions(t *testing.T) {
	t.Parallel()

	q := new(fakeQueries)
	rec, body := serve(t, q, "/users/"+user.Hex()+"/permissions")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []permissions.Page{{}}, q.pages)
	require.NotContains(t, body, "failures")

	perms := body["permissions"].([]interface{})
	require.Len(t, perms, 1)
	require.Equal(t, true, perms[0].(map[string]interface{})["active"])
}

func TestPresenter_GranteePermissions(t *testing.T) {
	t.Parallel()

	rec, body := serve(t, new(fakeQueries), "/grantees/3/permissions")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 3, body["granteeId"])
	require.Equal(t, []interface{}{float64(30)}, body["permissionIds"])
}

func TestPresenter_Operation(t *testing.T) {
	t.Parallel()

	rec, body := serve(t, new(fakeQueries), "/operations/op-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "op-1", body["operationId"])
	require.Equal(t, "confirmed", body["status"])
	require.Equal(t, common.HexToHash("0xc0ffee").Hex(), body["hash"])
	require.NotContains(t, body, "error")
}

func TestPresenter_Errors(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{name: "invalid address", path: "/users/0xZZ/servers", status: http.StatusBadRequest},
		{name: "invalid limit", path: "/users/" + user.Hex() + "/permissions?limit=abc", status: http.StatusBadRequest},
		{name: "limit too large", path: "/grantees?limit=5000", status: http.StatusBadRequest},
		{name: "offset without limit", path: "/grantees?offset=5", status: http.StatusBadRequest},
		{name: "invalid grantee id", path: "/grantees/0/permissions", status: http.StatusBadRequest},
		{name: "operation not found", path: "/operations/op-1", err: db.ErrNotFound, status: http.StatusNotFound},
		{name: "operations disabled", path: "/operations/op-1", err: permissions.ErrNoOperationsRepo, status: http.StatusNotImplemented},
		{name: "rpc failure", path: "/grantees", err: &sdkerrors.NetworkError{Cause: errors.New("connection refused")}, status: http.StatusBadGateway},
		{name: "unknown failure", path: "/grantees/1/permissions", err: errors.New("boom"), status: http.StatusInternalServerError},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec, body := serve(t, &fakeQueries{err: tc.err}, tc.path)
			require.Equal(t, tc.status, rec.Code)
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestPresenter_Metrics(t *testing.T) {
	t.Parallel()

	rec, _ := serve(t, new(fakeQueries), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
