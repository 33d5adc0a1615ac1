package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/contract/abi"
	"github.com/omni/permission-relay/sdkerrors"
)

type PermissionAdded struct {
	PermissionID *big.Int
	User         common.Address
	GranteeID    *big.Int
	Grant        string
	FileIDs      []*big.Int
}

type PermissionRevoked struct {
	PermissionID *big.Int
}

type ServerTrusted struct {
	User     common.Address
	ServerID *big.Int
}

type ServerUntrusted struct {
	User     common.Address
	ServerID *big.Int
}

func DecodePermissionAdded(e *Event) (*PermissionAdded, error) {
	if err := expect(e, abi.PermissionAdded); err != nil {
		return nil, err
	}
	res := new(PermissionAdded)
	var err error
	if res.PermissionID, err = field[*big.Int](e, "permissionId"); err != nil {
		return nil, err
	}
	if res.User, err = field[common.Address](e, "user"); err != nil {
		return nil, err
	}
	if res.GranteeID, err = field[*big.Int](e, "granteeId"); err != nil {
		return nil, err
	}
	if res.Grant, err = field[string](e, "grant"); err != nil {
		return nil, err
	}
	if res.FileIDs, err = field[[]*big.Int](e, "fileIds"); err != nil {
		return nil, err
	}
	return res, nil
}

func DecodePermissionRevoked(e *Event) (*PermissionRevoked, error) {
	if err := expect(e, abi.PermissionRevoked); err != nil {
		return nil, err
	}
	id, err := field[*big.Int](e, "permissionId")
	if err != nil {
		return nil, err
	}
	return &PermissionRevoked{PermissionID: id}, nil
}

func DecodeServerTrusted(e *Event) (*ServerTrusted, error) {
	if err := expect(e, abi.ServerTrusted); err != nil {
		return nil, err
	}
	user, serverID, err := userAndServer(e)
	if err != nil {
		return nil, err
	}
	return &ServerTrusted{User: user, ServerID: serverID}, nil
}

func DecodeServerUntrusted(e *Event) (*ServerUntrusted, error) {
	if err := expect(e, abi.ServerUntrusted); err != nil {
		return nil, err
	}
	user, serverID, err := userAndServer(e)
	if err != nil {
		return nil, err
	}
	return &ServerUntrusted{User: user, ServerID: serverID}, nil
}

func userAndServer(e *Event) (common.Address, *big.Int, error) {
	user, err := field[common.Address](e, "user")
	if err != nil {
		return common.Address{}, nil, err
	}
	serverID, err := field[*big.Int](e, "serverId")
	if err != nil {
		return common.Address{}, nil, err
	}
	return user, serverID, nil
}

func expect(e *Event, name string) error {
	if e == nil || e.Name != name {
		return &sdkerrors.BlockchainError{Message: fmt.Sprintf("expected %s event", name)}
	}
	return nil
}

func field[T any](e *Event, key string) (T, error) {
	v, ok := e.Values[key].(T)
	if !ok {
		var zero T
		return zero, &sdkerrors.BlockchainError{Message: fmt.Sprintf("%s event has unexpected %s field %T", e.Name, key, e.Values[key])}
	}
	return v, nil
}
