// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package api wires the example REST service: users, authentication, health,
metrics and the current authorization, all behind request IDs, throttling,
JWT authentication, compression and CORS.

Every handler runs through one response pipeline, so list routes get the
standard envelope with pagination, sorting and filtering, and all results
are serialized for the roles of the caller.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/pret/core/access"
	"github.com/relabs-tech/pret/core/csql"
	"github.com/relabs-tech/pret/core/logger"
	"github.com/relabs-tech/pret/core/registry"
	"github.com/relabs-tech/pret/core/response"
	"github.com/relabs-tech/pret/core/serializer"
	"github.com/relabs-tech/pret/core/throttle"
	"github.com/relabs-tech/pret/services/api/auth"
	"github.com/relabs-tech/pret/services/api/config"
	"github.com/relabs-tech/pret/services/api/mailer"
	"github.com/relabs-tech/pret/services/api/schemas"
	"github.com/relabs-tech/pret/services/api/user"
)

// Route keys of the service routes
var (
	RouteHealth        = response.Key("service", "health")
	RouteAuthorization = response.Key("service", "authorization")
)

// Builder is a builder helper for the API
type Builder struct {
	// Config is mandatory
	Config *config.Service
	// DB selects the postgres stores. Without DB, users and tokens are kept in memory.
	DB *csql.DB
	// Router defaults to a new router
	Router *mux.Router
	// Mailer defaults to SMTP if a mailer host is configured, otherwise to mailer.Log
	Mailer mailer.Mailer
	// Now is used for testing, defaults to time.Now
	Now func() time.Time
}

// API is the wired service
type API struct {
	Router   *mux.Router
	Pipeline *response.Pipeline
	Issuer   *access.TokenIssuer
	Cache    *access.AuthorizationCache
	Users    *user.Service
	Auth     *auth.Service

	config *config.Service
}

// New wires the API. The database tables are created if needed.
func New(ctx context.Context, b *Builder) (*API, error) {
	cfg := b.Config
	if cfg == nil {
		panic("Config is missing")
	}
	router := b.Router
	if router == nil {
		router = mux.NewRouter()
	}
	now := b.Now
	if now == nil {
		now = time.Now
	}
	rlog := logger.Default()

	var (
		userStore  user.Store
		tokenStore auth.Store
	)
	if b.DB != nil {
		store, err := user.NewPostgresStore(ctx, b.DB)
		if err != nil {
			return nil, err
		}
		reg, err := registry.New(ctx, b.DB)
		if err != nil {
			return nil, err
		}
		userStore, tokenStore = store, reg.WithClock(now).Accessor("auth")
	} else {
		rlog.Warnln("no database configured, keeping users in memory")
		userStore, tokenStore = user.NewMemoryStore(), auth.NewMemoryStore(now)
	}

	mail := b.Mailer
	if mail == nil {
		if cfg.Mailer.Host != "" {
			mail = mailer.NewSMTP(&mailer.SMTPBuilder{
				Host:      cfg.Mailer.Host,
				Port:      cfg.Mailer.Port,
				User:      cfg.Mailer.User,
				Password:  cfg.Mailer.Password,
				FromName:  cfg.Mailer.FromName,
				FromEmail: cfg.Mailer.FromEmail,
			})
		} else {
			mail = mailer.Log{}
		}
	}

	a := &API{
		Router: router,
		Cache:  access.NewAuthorizationCache(),
		Issuer: &access.TokenIssuer{
			Secret:    []byte(cfg.JWTSecret),
			Issuer:    cfg.JWTIssuer,
			ExpiresIn: cfg.JWTExpiresIn,
			Now:       now,
		},
		config: cfg,
	}
	a.Users = user.NewService(&user.ServiceBuilder{Store: userStore, Cache: a.Cache, Now: now})
	if cfg.AdminEmail != "" {
		err := a.Users.EnsureAccounts(ctx, user.Account{
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
			Roles:    []string{access.RoleUser, access.RoleAdmin},
		})
		if err != nil {
			return nil, err
		}
	}
	a.Auth = auth.NewService(&auth.ServiceBuilder{
		Users:             a.Users,
		Issuer:            a.Issuer,
		Tokens:            tokenStore,
		Mailer:            mail,
		EmailVerification: cfg.EmailVerification,
		URL:               cfg.InternalURL,
		Now:               now,
	})

	reg := response.NewRegistry()
	reg.InterceptAll = cfg.InterceptAll
	a.Pipeline = response.New(&response.Builder{
		Registry:     reg,
		Interceptors: []response.Interceptor{response.StandardResponse(), serializer.Interceptor()},
	})

	// all declarations before the first route resolves the registry
	validator := schemas.MustValidator()
	reg.MustDeclare(RouteHealth, response.Raw("health check"))
	reg.MustDeclare(RouteAuthorization, response.Raw("the current authorization"))
	users := user.NewController(&user.ControllerBuilder{Service: a.Users, Pipeline: a.Pipeline, Validator: validator})
	authentication := auth.NewController(&auth.ControllerBuilder{Service: a.Auth, Pipeline: a.Pipeline, Validator: validator})

	logger.AddRequestID(router)
	router.Use(throttle.New(&throttle.Builder{Limit: cfg.ThrottleLimit, TTL: cfg.ThrottleTTL, Now: now}).Middleware())
	router.Use(access.NewJwtMiddelware(&access.JwtMiddlewareBuilder{
		Issuer: a.Issuer,
		Lookup: a.Users.Authorization,
		Cache:  a.Cache,
	}))

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	a.Pipeline.Handle(router, "/health", RouteHealth, a.health).Methods(http.MethodGet)
	a.Pipeline.Handle(router, "/authorization", RouteAuthorization, a.authorization).Methods(http.MethodGet)
	users.HandleRoutes(router)

	// the auth controller registers absolute paths, so the subrouter has no prefix
	accounts := router.NewRoute().Subrouter()
	accounts.Use(throttle.New(&throttle.Builder{Limit: cfg.ThrottleLimitAccounts, TTL: cfg.ThrottleTTL, Now: now}).Middleware())
	authentication.HandleRoutes(accounts)

	return a, nil
}

// MustNew is New, but panics on error
func MustNew(ctx context.Context, b *Builder) *API {
	a, err := New(ctx, b)
	if err != nil {
		panic(fmt.Errorf("cannot create api: %w", err))
	}
	return a
}

// Handler returns the router wrapped with compression and CORS
func (a *API) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(a.config.CORSAllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID", "Retry-After"}),
		handlers.MaxAge(86400),
	)
	return cors(handlers.CompressHandler(a.Router))
}

func (a *API) health(r *http.Request, params *response.Params) (interface{}, error) {
	return map[string]string{"status": "ok"}, nil
}

// authorization returns the caller's authorization, or no content
func (a *API) authorization(r *http.Request, params *response.Params) (interface{}, error) {
	auth := access.AuthorizationFromContext(r.Context())
	if auth == nil {
		return nil, nil
	}
	return auth, nil
}

// ListenAndServe serves the API on the configured port until ctx is done
func (a *API) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		logger.Default().Infof("listen on port :%d", a.config.Port)
		errs <- server.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdown)
	}
}
