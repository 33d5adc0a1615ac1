package relayer

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/omni/permission-relay/sdkerrors"
)

const (
	TypeSigned    = "signed"
	TypeDirect    = "direct"
	TypeSubmitted = "submitted"
	TypeConfirmed = "confirmed"
	TypePending   = "pending"
	TypeError     = "error"
)

// OperationStoreGrantFile asks the relayer to persist a grant file and return its url.
const OperationStoreGrantFile = "storeGrantFile"

// Request is either *SignedRequest or *DirectRequest.
type Request interface {
	requestType() string
}

// SignedRequest carries a message the user already signed, the relayer only submits it.
// ExpectedUserAddress is the EIP-55 checksummed signer address.
type SignedRequest struct {
	Operation           string             `json:"operation"`
	TypedData           apitypes.TypedData `json:"typedData"`
	Signature           hexutil.Bytes      `json:"signature"`
	ExpectedUserAddress string             `json:"expectedUserAddress"`
}

// DirectRequest carries unsigned parameters, the relayer builds and pays for the operation.
type DirectRequest struct {
	Operation string                 `json:"operation"`
	Params    map[string]interface{} `json:"params"`
}

func (*SignedRequest) requestType() string { return TypeSigned }
func (*DirectRequest) requestType() string { return TypeDirect }

func MarshalRequest(req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &sdkerrors.SerializationError{Message: "can't encode relayer request", Cause: err}
	}
	fields := make(map[string]json.RawMessage)
	if err = json.Unmarshal(body, &fields); err != nil {
		return nil, &sdkerrors.SerializationError{Message: "can't encode relayer request", Cause: err}
	}
	fields["type"], _ = json.Marshal(req.requestType())
	return json.Marshal(fields)
}

// Response is one of *SubmittedResponse, *ConfirmedResponse, *PendingResponse,
// *ErrorResponse, *DirectResponse or *UnknownResponse.
type Response interface {
	responseType() string
}

type SubmittedResponse struct {
	Hash common.Hash `json:"hash"`
}

type ConfirmedResponse struct {
	Hash    common.Hash     `json:"hash"`
	Receipt json.RawMessage `json:"receipt,omitempty"`
}

type PendingResponse struct {
	OperationID string `json:"operationId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type DirectResponse struct {
	Result json.RawMessage `json:"result"`
}

type UnknownResponse struct {
	Type string
	Raw  json.RawMessage
}

func (*SubmittedResponse) responseType() string { return TypeSubmitted }
func (*ConfirmedResponse) responseType() string { return TypeConfirmed }
func (*PendingResponse) responseType() string   { return TypePending }
func (*ErrorResponse) responseType() string     { return TypeError }
func (*DirectResponse) responseType() string    { return TypeDirect }
func (r *UnknownResponse) responseType() string { return r.Type }

// DecodeResponse resolves the legacy "signed" tag into a SubmittedResponse.
func DecodeResponse(data []byte) (Response, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &sdkerrors.RelayerError{Message: "can't decode relayer response", Cause: err}
	}

	var res Response
	switch envelope.Type {
	case TypeSubmitted, TypeSigned:
		res = new(SubmittedResponse)
	case TypeConfirmed:
		res = new(ConfirmedResponse)
	case TypePending:
		res = new(PendingResponse)
	case TypeError:
		res = new(ErrorResponse)
	case TypeDirect:
		res = new(DirectResponse)
	default:
		return &UnknownResponse{Type: envelope.Type, Raw: data}, nil
	}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, &sdkerrors.RelayerError{
			Message: fmt.Sprintf("can't decode %q relayer response", envelope.Type),
			Cause:   err,
		}
	}
	return res, nil
}

type StatusState string

const (
	StatusPending   StatusState = "pending"
	StatusConfirmed StatusState = "confirmed"
	StatusFailed    StatusState = "failed"
)

type Status struct {
	OperationID string       `json:"operationId"`
	State       StatusState  `json:"status"`
	Hash        *common.Hash `json:"hash,omitempty"`
	Error       string       `json:"error,omitempty"`
}
