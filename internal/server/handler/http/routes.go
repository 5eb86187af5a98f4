package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atinyakov/consultdesk/internal/middleware"
)

// Deps groups what NewRouter mounts.
type Deps struct {
	Auth    *AuthHandler
	Content *ContentHandler
	Health  *HealthHandler
	// Authenticator resolves bearer tokens for every /api route.
	Authenticator middleware.Authenticator
	// Metrics is optional; without it /metrics is not served.
	Metrics  *middleware.Metrics
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// NewRouter constructs the HTTP handler of the backend.
//
// Routes:
//
//	GET    /healthz, /readyz, /metrics
//	POST   /api/auth/register, /api/auth/login, /api/auth/refresh, /api/auth/logout
//	GET    /api/auth/me                 (bearer required)
//	GET    /api/{collection}            ?ordering=&limit=&offset=&author=
//	POST   /api/{collection}
//	GET    /api/{collection}/{id}
//	PATCH  /api/{collection}/{id}
//	DELETE /api/{collection}/{id}
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Handler)
	}
	r.Use(middleware.WithRequestLogging(d.Log))

	r.Get("/healthz", d.Health.Live)
	r.Get("/readyz", d.Health.Ready)
	if d.Metrics != nil && d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// Only JSON bodies are accepted; body-less requests pass.
		r.Use(chiMiddleware.AllowContentType("application/json"))
		r.Use(middleware.WithUserContext(d.Authenticator))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.Auth.Register)
			r.Post("/login", d.Auth.Login)
			r.Post("/refresh", d.Auth.Refresh)
			r.Post("/logout", d.Auth.Logout)
			r.With(middleware.RequireAuth).Get("/me", d.Auth.Me)
		})

		r.Get("/{collection}", d.Content.List)
		r.Post("/{collection}", d.Content.Create)
		r.Get("/{collection}/{id}", d.Content.Get)
		r.Patch("/{collection}/{id}", d.Content.Update)
		r.Delete("/{collection}/{id}", d.Content.Delete)
	})

	return r
}
