// Package sdkerrors defines the error kinds surfaced to callers of the
// permission and server-trust operations. Callers branch on them with errors.As.
package sdkerrors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoStorage          = errors.New("no storage path available for grant file")
	ErrPollCancelled      = errors.New("relayer operation polling cancelled")
	ErrNoAccount          = errors.New("no signer account available")
	ErrUnexpectedResponse = errors.New("unexpected relayer response shape")
)

// UserRejectedRequestError is terminal, the signer declined the request.
type UserRejectedRequestError struct {
	Cause error
}

func (e *UserRejectedRequestError) Error() string {
	if e.Cause == nil {
		return "user rejected the request"
	}
	return fmt.Sprintf("user rejected the request: %s", e.Cause)
}

func (e *UserRejectedRequestError) Unwrap() error { return e.Cause }

type SignatureError struct {
	Cause error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("can't sign typed data: %s", e.Cause)
}

func (e *SignatureError) Unwrap() error { return e.Cause }

type SerializationError struct {
	Message string
	Cause   error
}

func (e *SerializationError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

type NonceError struct {
	Account common.Address
	Family  string
	Cause   error
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("can't read %s nonce for %s: %s", e.Family, e.Account, e.Cause)
}

func (e *NonceError) Unwrap() error { return e.Cause }

// RelayerError must not be retried automatically, the operation may already be submitted.
type RelayerError struct {
	Message string
	Cause   error
}

func (e *RelayerError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("relayer error: %s", e.Message)
	}
	return fmt.Sprintf("relayer error: %s: %s", e.Message, e.Cause)
}

func (e *RelayerError) Unwrap() error { return e.Cause }

type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

type BlockchainError struct {
	Message string
	Cause   error
}

func (e *BlockchainError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Cause)
}

func (e *BlockchainError) Unwrap() error { return e.Cause }

// ServerURLMismatchError is raised when a server is already registered under a different url.
type ServerURLMismatchError struct {
	Existing string
	Provided string
}

func (e *ServerURLMismatchError) Error() string {
	return fmt.Sprintf("server url mismatch: existing %q, provided %q", e.Existing, e.Provided)
}

type InvalidNonceError struct {
	Expected string
	Provided string
}

func (e *InvalidNonceError) Error() string {
	return fmt.Sprintf("contract rejected nonce %s, expected %s", e.Provided, e.Expected)
}

type GranteeNotFoundError struct {
	Grantee common.Address
}

func (e *GranteeNotFoundError) Error() string {
	return fmt.Sprintf("grantee %s is not registered", e.Grantee)
}

// PollTimeoutError means the operation is still pending on the relayer side,
// polling can be resumed later with the same OperationID.
type PollTimeoutError struct {
	OperationID string
	Elapsed     time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("relayer operation %s is still pending after %s", e.OperationID, e.Elapsed)
}

func IsKnown(err error) bool {
	var (
		rejected    *UserRejectedRequestError
		signature   *SignatureError
		serialize   *SerializationError
		nonce       *NonceError
		relayer     *RelayerError
		network     *NetworkError
		chain       *BlockchainError
		urlMismatch *ServerURLMismatchError
		badNonce    *InvalidNonceError
		grantee     *GranteeNotFoundError
		timeout     *PollTimeoutError
	)
	switch {
	case errors.As(err, &rejected), errors.As(err, &signature), errors.As(err, &serialize),
		errors.As(err, &nonce), errors.As(err, &relayer), errors.As(err, &network),
		errors.As(err, &chain), errors.As(err, &urlMismatch), errors.As(err, &badNonce),
		errors.As(err, &grantee), errors.As(err, &timeout):
		return true
	}
	return errors.Is(err, ErrNoStorage) || errors.Is(err, ErrPollCancelled) || errors.Is(err, ErrNoAccount)
}

// WrapUnknown returns known errors unchanged and wraps anything else into a BlockchainError.
func WrapUnknown(err error, msg string) error {
	if err == nil || IsKnown(err) {
		return err
	}
	return &BlockchainError{Message: msg, Cause: err}
}

var rejectionPatterns = []string{
	"user rejected",
	"user denied",
}

// IsUserRejection detects wallet rejections, reported as EIP-1193 code 4001 or by message.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	var rejected *UserRejectedRequestError
	if errors.As(err, &rejected) {
		return true
	}
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) && coded.ErrorCode() == 4001 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rejectionPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
