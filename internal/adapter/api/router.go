package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/logrelay/internal/adapter/api/handler"
	"github.com/V4T54L/logrelay/internal/adapter/api/middleware"
	"github.com/V4T54L/logrelay/internal/usecase"
)

// NewAdminRouter builds the admin HTTP handler: health, Prometheus metrics
// from gatherer, and mirror stream administration. adminUseCase may be nil.
func NewAdminRouter(adminUseCase *usecase.AdminStreamUseCase, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	adminHandler := handler.NewAdminHandler(adminUseCase, logger)

	r.Get("/health", adminHandler.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/admin/stream", func(r chi.Router) {
		r.Get("/groups", adminHandler.GetGroupInfo)
		r.Get("/groups/{groupName}/pending", adminHandler.GetPendingSummary)
		r.Post("/trim", adminHandler.TrimStream)
	})

	return r
}
