package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/api/middleware"
	"github.com/mcoot/userdata/internal/api/response"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger *zap.Logger
	// Component is reported by the health endpoint
	Component string
	// Gatherer serves /metrics; nil leaves the endpoint out
	Gatherer prometheus.Gatherer
	// Websocket serves /websocket; nil leaves the endpoint out
	Websocket http.Handler
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)
	api.HandleFunc("/health", response.HealthHandler(cfg.Component)).Methods(http.MethodGet)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	if cfg.Websocket != nil {
		ws := recoveryMiddleware(loggingMiddleware(cfg.Websocket))
		r.Handle("/websocket", ws).Methods(http.MethodGet)
	}

	return r
}
