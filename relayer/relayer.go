// Package relayer talks to the gas sponsoring relayer service: submission of
// signed operations, direct operations and polling of pending operations.
package relayer

import "context"

// Relayer is the only integration point needed for gasless operations.
// A nil Relayer means every operation is submitted directly.
type Relayer interface {
	Relay(ctx context.Context, req Request) (Response, error)
}

type RelayFunc func(ctx context.Context, req Request) (Response, error)

func (f RelayFunc) Relay(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

type StatusChecker interface {
	Status(ctx context.Context, operationID string) (*Status, error)
}
