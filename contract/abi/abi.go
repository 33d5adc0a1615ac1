package abi

//nolint:golint
import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed data_permissions.json
var dataPermissionsJSONABI string

//go:embed servers.json
var serversJSONABI string

//go:embed grantees.json
var granteesJSONABI string

//go:embed multicall3.json
var multicall3JSONABI string

var (
	ErrInvalidEvent   = errors.New("cannot process event without topics")
	ErrUnknownRevert  = errors.New("unknown revert selector")
	ErrShortRevertErr = errors.New("revert data is shorter than selector")
)

var (
	DataPermissionsABI = MustReadABI(dataPermissionsJSONABI)
	ServersABI         = MustReadABI(serversJSONABI)
	GranteesABI        = MustReadABI(granteesJSONABI)
	Multicall3ABI      = MustReadABI(multicall3JSONABI)
)

const (
	PermissionAdded   = "PermissionAdded"
	PermissionRevoked = "PermissionRevoked"
	ServerRegistered  = "ServerRegistered"
	ServerTrusted     = "ServerTrusted"
	ServerUntrusted   = "ServerUntrusted"
	GranteeRegistered = "GranteeRegistered"

	ServerURLMismatch = "ServerUrlMismatch"
	InvalidNonce      = "InvalidNonce"
)

type ABI struct {
	abi.ABI
}

func MustReadABI(rawJSON string) *ABI {
	res, err := abi.JSON(strings.NewReader(rawJSON))
	if err != nil {
		panic(err)
	}
	return &ABI{res}
}

func (a *ABI) AllEvents() map[string]bool {
	events := make(map[string]bool, len(a.Events))
	for _, event := range a.Events {
		events[event.String()] = true
	}
	return events
}

func (a *ABI) FindMatchingEventABI(topics []common.Hash) *abi.Event {
	for _, e := range a.Events {
		if e.ID == topics[0] {
			indexed := Indexed(e.Inputs)
			if len(indexed) == len(topics)-1 {
				return &e
			}
		}
	}
	return nil
}

// ParseLog returns an empty event name for logs not described by the ABI.
func (a *ABI) ParseLog(log *types.Log) (*abi.Event, map[string]interface{}, error) {
	if len(log.Topics) == 0 {
		return nil, nil, ErrInvalidEvent
	}
	event := a.FindMatchingEventABI(log.Topics)
	if event == nil {
		return nil, nil, nil
	}

	res, err := DecodeEventLog(event, log.Topics, log.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("can't decode event log: %w", err)
	}
	return event, res, nil
}

// DecodeRevert matches custom error revert data against the errors declared in the ABI.
func (a *ABI) DecodeRevert(data []byte) (*abi.Error, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, ErrShortRevertErr
	}
	for _, e := range a.Errors {
		if !bytes.Equal(e.ID[:4], data[:4]) {
			continue
		}
		e := e
		args, err := e.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, nil, fmt.Errorf("can't unpack %s arguments: %w", e.Name, err)
		}
		return &e, args, nil
	}
	return nil, nil, ErrUnknownRevert
}

func Indexed(args abi.Arguments) abi.Arguments {
	var indexed abi.Arguments
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func DecodeEventLog(event *abi.Event, topics []common.Hash, data []byte) (map[string]interface{}, error) {
	indexed := Indexed(event.Inputs)
	values := make(map[string]interface{})
	if len(indexed) < len(event.Inputs) {
		if err := event.Inputs.UnpackIntoMap(values, data); err != nil {
			return nil, fmt.Errorf("can't unpack data: %w", err)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, topics[1:]); err != nil {
		return nil, fmt.Errorf("can't unpack topics: %w", err)
	}
	return values, nil
}
