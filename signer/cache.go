package signer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	cacheimpl "github.com/Code-Hex/go-generics-cache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/sync/singleflight"

	"github.com/omni/permission-relay/sdkerrors"
)

// Cache memoizes signatures by (account, canonical message). Entries expire
// after ttl and are never persisted. Failed attempts are not cached.
type Cache struct {
	ttl   time.Duration
	group singleflight.Group

	mu     sync.Mutex
	store  *cacheimpl.Cache[string, []byte]
	cancel context.CancelFunc
}

func NewCache(ttl time.Duration) *Cache {
	c := &Cache{ttl: ttl}
	c.Clear()
	return c
}

// CacheKey hashes the account together with the JSON form of the typed data.
// Maps are serialized with sorted keys, so logically identical messages share a key.
func CacheKey(account common.Address, data apitypes.TypedData) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", &sdkerrors.SerializationError{Message: "can't canonicalize typed data", Cause: err}
	}
	h := sha256.New()
	h.Write([]byte(strings.ToLower(account.Hex())))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Cache) current() *cacheimpl.Cache[string, []byte] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Get returns a copy of the cached signature.
func (c *Cache) Get(key string) ([]byte, bool) {
	sig, ok := c.current().Get(key)
	if !ok {
		return nil, false
	}
	return common.CopyBytes(sig), true
}

func (c *Cache) Set(key string, sig []byte) {
	c.current().Set(key, common.CopyBytes(sig), cacheimpl.WithExpiration(c.ttl))
}

// Do returns the cached signature for key or calls sign. Concurrent calls for
// the same key share a single sign call. Waiting stops when ctx is done, the
// shared call keeps running for the other callers.
func (c *Cache) Do(ctx context.Context, key string, sign func() ([]byte, error)) ([]byte, error) {
	if sig, ok := c.Get(key); ok {
		return sig, nil
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if sig, ok := c.current().Get(key); ok {
			return sig, nil
		}
		sig, err := sign()
		if err != nil {
			return nil, err
		}
		c.Set(key, sig)
		return sig, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return common.CopyBytes(res.Val.([]byte)), nil
	}
}

func (c *Cache) Len() int {
	return len(c.current().Keys())
}

// Clear drops every cached signature. In-flight requests are left to finish.
func (c *Cache) Clear() {
	ctx, cancel := context.WithCancel(context.Background())
	store := cacheimpl.NewContext[string, []byte](ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.store, c.cancel = store, cancel
}
