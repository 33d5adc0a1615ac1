package presenter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni/permission-relay/batch"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/permissions"
	"github.com/omni/permission-relay/presenter/http/middleware"
	"github.com/omni/permission-relay/presenter/http/render"
)

const shutdownTimeout = 10 * time.Second

var ErrInvalidGranteeID = errors.New("invalid grantee id")

// Queries is the read side of permissions.Controller.
type Queries interface {
	TrustedServers(ctx context.Context, user common.Address, page permissions.Page) (*permissions.TrustedServers, error)
	UserPermissions(ctx context.Context, user common.Address, page permissions.Page) (*permissions.UserPermissions, error)
	Grantees(ctx context.Context, page permissions.Page) (*permissions.Grantees, error)
	GranteePermissionIDs(ctx context.Context, granteeID *big.Int) (*batch.Page[*big.Int], error)
	Operation(ctx context.Context, operationID string) (*entity.RelayerOperation, error)
}

type Presenter struct {
	logger  logging.Logger
	queries Queries
	root    chi.Router
}

func NewPresenter(logger logging.Logger, queries Queries) *Presenter {
	p := &Presenter{
		logger:  logger,
		queries: queries,
		root:    chi.NewMux(),
	}
	p.routes()
	return p
}

func (p *Presenter) routes() {
	p.root.Use(chimiddleware.Throttle(5))
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(p.logger))
	p.root.Use(middleware.Recoverer)

	p.root.Handle("/metrics", promhttp.Handler())
	p.root.Route("/users/{address}", func(r chi.Router) {
		r.Use(middleware.GetAddressMiddleware, middleware.GetPageMiddleware)
		r.Get("/servers", p.wrapJSONHandler(p.GetTrustedServers))
		r.Get("/permissions", p.wrapJSONHandler(p.GetUserPermissions))
	})
	p.root.With(middleware.GetPageMiddleware).Get("/grantees", p.wrapJSONHandler(p.GetGrantees))
	p.root.Get("/grantees/{granteeID}/permissions", p.wrapJSONHandler(p.GetGranteePermissions))
	p.root.Get("/operations/{operationID}", p.wrapJSONHandler(p.GetOperation))
}

func (p *Presenter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.root.ServeHTTP(w, r)
}

// Serve blocks until ctx is cancelled or the listener fails.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	srv := &http.Server{
		Addr:              addr,
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			p.logger.WithError(err).Warn("failed to shutdown presenter service")
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (p *Presenter) wrapJSONHandler(handler func(ctx context.Context) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r.Context())
		if err != nil {
			render.Error(w, r, err)
			return
		}
		render.JSON(w, r, http.StatusOK, res)
	}
}

func queryPage(ctx context.Context) permissions.Page {
	page := middleware.PageFromContext(ctx)
	return permissions.Page{Offset: page.Offset, Limit: page.Limit}
}

func (p *Presenter) logFailures(ctx context.Context, failures []batch.Failure) {
	for _, f := range failures {
		logging.LoggerFromContext(ctx).WithError(f.Err).WithField("key", f.Key).Warn("item was skipped from the response")
	}
}

func (p *Presenter) GetTrustedServers(ctx context.Context) (interface{}, error) {
	res, err := p.queries.TrustedServers(ctx, middleware.AddressFromContext(ctx), queryPage(ctx))
	if err != nil {
		return nil, err
	}
	p.logFailures(ctx, res.Failures)
	return &TrustedServersResult{TrustedServers: res, Failures: failuresToInfo(res.Failures)}, nil
}

func (p *Presenter) GetUserPermissions(ctx context.Context) (interface{}, error) {
	res, err := p.queries.UserPermissions(ctx, middleware.AddressFromContext(ctx), queryPage(ctx))
	if err != nil {
		return nil, err
	}
	p.logFailures(ctx, res.Failures)
	return &UserPermissionsResult{UserPermissions: res, Failures: failuresToInfo(res.Failures)}, nil
}

func (p *Presenter) GetGrantees(ctx context.Context) (interface{}, error) {
	res, err := p.queries.Grantees(ctx, queryPage(ctx))
	if err != nil {
		return nil, err
	}
	p.logFailures(ctx, res.Failures)
	return &GranteesResult{Grantees: res, Failures: failuresToInfo(res.Failures)}, nil
}

func (p *Presenter) GetGranteePermissions(ctx context.Context) (interface{}, error) {
	raw := chi.URLParamFromCtx(ctx, "granteeID")
	granteeID, ok := new(big.Int).SetString(raw, 10)
	if !ok || granteeID.Sign() <= 0 {
		return nil, render.WithStatus(http.StatusBadRequest, fmt.Errorf("%q: %w", raw, ErrInvalidGranteeID))
	}
	res, err := p.queries.GranteePermissionIDs(ctx, granteeID)
	if err != nil {
		return nil, err
	}
	return &GranteePermissionsResult{
		GranteeID:     granteeID,
		PermissionIDs: res.Items,
		TotalCount:    res.TotalCount,
		HasMore:       res.HasMore,
	}, nil
}

func (p *Presenter) GetOperation(ctx context.Context) (interface{}, error) {
	op, err := p.queries.Operation(ctx, chi.URLParamFromCtx(ctx, "operationID"))
	if errors.Is(err, permissions.ErrNoOperationsRepo) {
		return nil, render.WithStatus(http.StatusNotImplemented, err)
	}
	if err != nil {
		return nil, err
	}
	return operationToInfo(op), nil
}
