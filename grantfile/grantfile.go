// Package grantfile builds, validates and stores the off-chain grant payload
// referenced by permission messages.
package grantfile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/xeipuuv/gojsonschema"

	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/sdkerrors"
)

//go:embed schema.json
var schemaJSON []byte

var schema = mustLoadSchema(schemaJSON)

func mustLoadSchema(raw []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(err)
	}
	return s
}

type GrantFile struct {
	Grantee    common.Address         `json:"grantee"`
	Operation  string                 `json:"operation"`
	Files      []uint64               `json:"files,omitempty"`
	Parameters map[string]interface{} `json:"parameters"`
	Expires    *int64                 `json:"expires,omitempty"`
}

func FromGrant(grant *entity.PermissionGrant) *GrantFile {
	return &GrantFile{
		Grantee:    grant.Grantee,
		Operation:  grant.Operation,
		Files:      grant.Files,
		Parameters: grant.Parameters,
		Expires:    grant.Expires,
	}
}

// Marshal validates the grant file and returns its JSON encoding.
func (g *GrantFile) Marshal() ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, &sdkerrors.SerializationError{Message: "can't encode grant file", Cause: err}
	}
	if err = validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Hash is the keccak256 of the encoded grant file.
func (g *GrantFile) Hash() (common.Hash, error) {
	data, err := g.Marshal()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}

func Parse(data []byte) (*GrantFile, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	res := new(GrantFile)
	if err := json.Unmarshal(data, res); err != nil {
		return nil, &sdkerrors.SerializationError{Message: "can't decode grant file", Cause: err}
	}
	return res, nil
}

func validate(data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &sdkerrors.SerializationError{Message: "can't validate grant file", Cause: err}
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return &sdkerrors.SerializationError{Message: "invalid grant file: " + strings.Join(msgs, "; ")}
}
