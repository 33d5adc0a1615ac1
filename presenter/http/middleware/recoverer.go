package middleware

import (
	"fmt"
	"net/http"

	"github.com/omni/permission-relay/presenter/http/render"
)

// Recoverer turns a handler panic into a 500 response, http.ErrAbortHandler is re-raised.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint,goerr113
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", rec)
			}
			render.Error(w, r, render.WithStatus(http.StatusInternalServerError, err))
		}()
		next.ServeHTTP(w, r)
	})
}
