package relayer_test

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"github.com/omni/permission-relay/relayer"
	"github.com/omni/permission-relay/sdkerrors"
)

const txHash = "0x5a1fca7d2ac3e85ab7a3d0b3e0ac3a1c3c0ca5c1f5c0f1ac20b9e7b4a2b5c9d1"

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name     string
		Body     string
		Expected relayer.Response
	}{
		{
			Name:     "submitted",
			Body:     `{"type":"submitted","hash":"` + txHash + `"}`,
			Expected: &relayer.SubmittedResponse{Hash: common.HexToHash(txHash)},
		},
		{
			Name:     "legacy signed",
			Body:     `{"type":"signed","hash":"` + txHash + `"}`,
			Expected: &relayer.SubmittedResponse{Hash: common.HexToHash(txHash)},
		},
		{
			Name:     "confirmed",
			Body:     `{"type":"confirmed","hash":"` + txHash + `","receipt":{"status":"0x1"}}`,
			Expected: &relayer.ConfirmedResponse{Hash: common.HexToHash(txHash), Receipt: json.RawMessage(`{"status":"0x1"}`)},
		},
		{
			Name:     "pending",
			Body:     `{"type":"pending","operationId":"op-1"}`,
			Expected: &relayer.PendingResponse{OperationID: "op-1"},
		},
		{
			Name:     "error",
			Body:     `{"type":"error","error":"insufficient sponsor balance"}`,
			Expected: &relayer.ErrorResponse{Error: "insufficient sponsor balance"},
		},
		{
			Name:     "direct",
			Body:     `{"type":"direct","result":{"url":"ipfs://bafy"}}`,
			Expected: &relayer.DirectResponse{Result: json.RawMessage(`{"url":"ipfs://bafy"}`)},
		},
		{
			Name:     "unknown",
			Body:     `{"type":"queued","position":3}`,
			Expected: &relayer.UnknownResponse{Type: "queued", Raw: json.RawMessage(`{"type":"queued","position":3}`)},
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()

			res, err := relayer.DecodeResponse([]byte(test.Body))
			require.NoError(t, err)
			require.Equal(t, test.Expected, res)
		})
	}
}

func TestDecodeResponse_Invalid(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`not json`, `{"type":"pending","operationId":5}`} {
		_, err := relayer.DecodeResponse([]byte(body))
		var relayerErr *sdkerrors.RelayerError
		require.ErrorAs(t, err, &relayerErr)
	}
}

func TestMarshalRequest(t *testing.T) {
	t.Parallel()

	user := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data, err := relayer.MarshalRequest(&relayer.SignedRequest{
		Operation:           "submitAddPermission",
		TypedData:           apitypes.TypedData{PrimaryType: "Permission"},
		Signature:           []byte{0x01, 0x02},
		ExpectedUserAddress: user.Hex(),
	})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Equal(t, "signed", fields["type"])
	require.Equal(t, "submitAddPermission", fields["operation"])
	require.Equal(t, "0x0102", fields["signature"])
	require.Equal(t, user.Hex(), fields["expectedUserAddress"])

	data, err = relayer.MarshalRequest(&relayer.DirectRequest{
		Operation: relayer.OperationStoreGrantFile,
		Params:    map[string]interface{}{"grantFile": map[string]interface{}{"operation": "llm_inference"}},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"direct","operation":"storeGrantFile","params":{"grantFile":{"operation":"llm_inference"}}}`, string(data))
}
