package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/authservice/internal/guard"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/health"
	"github.com/utafrali/authservice/pkg/httputil"
	"github.com/utafrali/authservice/pkg/middleware"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	ServiceName string
	Routes      []Route
	Tokens      guard.TokenParser
	Permissions *guard.PermissionGuard
	// RefreshCookie names the cookie the refresh guard falls back to. Empty
	// disables the fallback.
	RefreshCookie string

	Health     *health.Handler
	Metrics    *middleware.HTTPMetrics
	Gatherer   prometheus.Gatherer
	CORS       middleware.CORSConfig
	PprofCIDRs []string
	Logger     *slog.Logger
}

// NewRouter creates a chi router serving the route table under /auth plus
// the operational endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, apperrors.NotFoundMessage("route not found"), cfg.Logger)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	// Operational endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.LivenessHandler())
		r.Get("/health/ready", cfg.Health.ReadinessHandler())
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, cfg.Logger)
	}

	access := guard.Access(cfg.Tokens)
	refresh := guard.Refresh(cfg.Tokens, cfg.RefreshCookie)

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		for _, rt := range cfg.Routes {
			chain := []func(http.Handler) http.Handler{}
			switch rt.Guard {
			case GuardAccess:
				chain = append(chain, access)
			case GuardRefresh:
				chain = append(chain, refresh)
			}
			if len(rt.Permissions) > 0 {
				if cfg.Permissions == nil {
					panic(fmt.Sprintf("route %s %s requires permissions but no permission guard is configured", rt.Method, rt.Path))
				}
				chain = append(chain, cfg.Permissions.Require(rt.Permissions...))
			}
			r.With(chain...).Method(rt.Method, rt.Path, rt.Handler)
		}
	})

	return r
}
