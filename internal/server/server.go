package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sales-analytics/internal/handlers"
	"sales-analytics/internal/middleware"
	"sales-analytics/internal/services"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(analytics *services.Analytics, predictions *services.Predictions, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(analytics, predictions, logger),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	if templateHandlers != nil && templateHandlers.Dashboard != nil {
		s.handle("GET /{$}", templateHandlers.Dashboard)
	}
	s.handle("GET /sse/dashboard", s.sseHandlers.HandleDashboard)

	// REST API endpoints
	s.handle("GET /api/test", s.apiHandlers.HandleTest)
	s.handle("GET /api/dashboard", s.apiHandlers.HandleDashboard)
	s.handle("GET /api/country-sales", s.apiHandlers.HandleCountrySales)
	s.handle("GET /api/product-sales", s.apiHandlers.HandleProductSales)
	s.handle("GET /api/monthly-sales", s.apiHandlers.HandleMonthlySales)
	s.handle("POST /api/predict", s.apiHandlers.HandlePredict)

	// Operations
	s.handle("GET /health", s.apiHandlers.HandleHealth)
	s.handle("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, middleware.Metrics()(h))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
