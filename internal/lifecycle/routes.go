package lifecycle

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/himera-shop/internal/middleware"
)

// NewOpsRouter serves metrics, the component health report and the
// liveness/readiness checks.
func NewOpsRouter(log *slog.Logger, health http.Handler, status *Status) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.New(log))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Method(http.MethodGet, "/health", health)
	r.Method(http.MethodGet, "/live", status.Handler(status.Liveness))
	r.Method(http.MethodGet, "/ready", status.Handler(status.Readiness))

	return r
}
