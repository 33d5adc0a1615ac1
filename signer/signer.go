package signer

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/sdkerrors"
)

var ErrNoWallet = errors.New("no wallet configured")

type Signer struct {
	wallet Wallet
	cache  *Cache
	logger logging.Logger
}

// New creates a signer bound to the given cache. The cache lifecycle belongs
// to the caller, who should Clear it on teardown.
func New(wallet Wallet, cache *Cache, logger logging.Logger) *Signer {
	return &Signer{
		wallet: wallet,
		cache:  cache,
		logger: logger,
	}
}

func (s *Signer) Wallet() Wallet {
	return s.wallet
}

// Sign returns a 65-byte signature over the typed data. Identical requests are
// answered from the cache; concurrent identical requests prompt the wallet once.
func (s *Signer) Sign(ctx context.Context, account common.Address, data apitypes.TypedData) ([]byte, error) {
	if s.wallet == nil {
		return nil, &sdkerrors.SignatureError{Cause: ErrNoWallet}
	}
	key, err := CacheKey(account, data)
	if err != nil {
		return nil, err
	}
	if sig, ok := s.cache.Get(key); ok {
		SignatureRequests.WithLabelValues("cache_hit").Inc()
		return sig, nil
	}
	// the sign call is shared with other callers, leaving ctx only stops waiting
	signCtx := context.WithoutCancel(ctx)
	sig, err := s.cache.Do(ctx, key, func() ([]byte, error) {
		sig, err := s.wallet.SignTypedData(signCtx, account, data)
		if err != nil {
			return nil, s.classify(account, err)
		}
		SignatureRequests.WithLabelValues("signed").Inc()
		return sig, nil
	})
	if err != nil {
		if !sdkerrors.IsKnown(err) {
			return nil, &sdkerrors.SignatureError{Cause: err}
		}
		return nil, err
	}
	return sig, nil
}

func (s *Signer) classify(account common.Address, err error) error {
	logger := s.logger.WithField("account", account).WithError(err)
	if sdkerrors.IsUserRejection(err) {
		SignatureRequests.WithLabelValues("rejected").Inc()
		logger.Info("user rejected signing request")
		var rejected *sdkerrors.UserRejectedRequestError
		if errors.As(err, &rejected) {
			return err
		}
		return &sdkerrors.UserRejectedRequestError{Cause: err}
	}
	SignatureRequests.WithLabelValues("error").Inc()
	logger.Warn("failed to sign typed data")
	return &sdkerrors.SignatureError{Cause: err}
}

// ResolveAccount picks the effective signer account. An explicit address wins
// over the wallet default account; with neither available it fails with ErrNoAccount.
func ResolveAccount(explicit *common.Address, wallet Wallet) (common.Address, error) {
	if explicit != nil && *explicit != (common.Address{}) {
		return *explicit, nil
	}
	if wallet != nil {
		if acc := wallet.Account(); acc != (common.Address{}) {
			return acc, nil
		}
	}
	return common.Address{}, sdkerrors.ErrNoAccount
}
