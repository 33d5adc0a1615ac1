package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/omni/permission-relay/presenter/http/render"
)

type ctxKey int

const (
	pageCtxKey ctxKey = iota
	addressCtxKey
)

const MaxPageLimit = 1000

var (
	ErrInvalidAddress = errors.New("invalid address parameter")
	ErrInvalidPage    = errors.New("invalid pagination parameters")
)

// Page is a requested window, a zero Limit asks for the whole collection.
type Page struct {
	Offset uint64
	Limit  uint64
}

func GetPageMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		page := Page{}

		for name, dst := range map[string]*uint64{"offset": &page.Offset, "limit": &page.Limit} {
			raw := query.Get(name)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				render.Error(w, r, render.WithStatus(http.StatusBadRequest, fmt.Errorf("failed to parse %s: %w", name, ErrInvalidPage)))
				return
			}
			*dst = v
		}
		if page.Limit > MaxPageLimit {
			render.Error(w, r, render.WithStatus(http.StatusBadRequest, fmt.Errorf("cannot request more than %d items: %w", MaxPageLimit, ErrInvalidPage)))
			return
		}
		if page.Limit == 0 && page.Offset > 0 {
			render.Error(w, r, render.WithStatus(http.StatusBadRequest, fmt.Errorf("offset requires limit: %w", ErrInvalidPage)))
			return
		}

		ctx := context.WithValue(r.Context(), pageCtxKey, page)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func PageFromContext(ctx context.Context) Page {
	if page, ok := ctx.Value(pageCtxKey).(Page); ok {
		return page
	}
	return Page{}
}

func GetAddressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := chi.URLParam(r, "address")
		if !common.IsHexAddress(address) {
			render.Error(w, r, render.WithStatus(http.StatusBadRequest, fmt.Errorf("%q: %w", address, ErrInvalidAddress)))
			return
		}

		ctx := context.WithValue(r.Context(), addressCtxKey, common.HexToAddress(address))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func AddressFromContext(ctx context.Context) common.Address {
	if addr, ok := ctx.Value(addressCtxKey).(common.Address); ok {
		return addr
	}
	return common.Address{}
}
