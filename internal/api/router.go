package api

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func (h *APIHandler) route(r chi.Router, method, pattern string, fn http.HandlerFunc) {
	r.Method(method, pattern, h.metrics.WrapHandler(pattern, fn))
}

func SetupDataRouter(apiHandler *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(apiHandler.logger))
	r.Use(middleware.Recoverer)

	apiHandler.route(r, http.MethodPost, "/data", apiHandler.HandleDataIngest)
	r.Get("/healthz", apiHandler.Healthz)

	return r
}

// SetupUIRouter serves the dashboard, its WebSocket feed and the JSON API.
// allowedOrigins feeds the CORS policy.
func SetupUIRouter(apiHandler *APIHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(apiHandler.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", apiHandler.ServeWebUI)
	// not wrapped with metrics: the upgrade needs the raw ResponseWriter
	r.Get("/ws", apiHandler.HandleWebSocket)

	apiHandler.route(r, http.MethodGet, "/api/alerts", apiHandler.GetAlerts)
	apiHandler.route(r, http.MethodDelete, "/api/alerts", apiHandler.ClearAlerts)
	apiHandler.route(r, http.MethodGet, "/api/assessment", apiHandler.GetAssessment)
	apiHandler.route(r, http.MethodGet, "/api/readings", apiHandler.GetReadings)
	apiHandler.route(r, http.MethodGet, "/api/status", apiHandler.GetStatus)
	apiHandler.route(r, http.MethodGet, "/api/thresholds", apiHandler.GetThresholds)
	apiHandler.route(r, http.MethodGet, "/api/history", apiHandler.GetHistory)
	apiHandler.route(r, http.MethodGet, "/api/export.csv", apiHandler.ExportCSV())
	apiHandler.route(r, http.MethodGet, "/api/export.xlsx", apiHandler.ExportXLSX())

	r.Handle("/metrics", apiHandler.metrics.Handler())
	r.Get("/healthz", apiHandler.Healthz)

	// Serve static files (CSS, JS)
	staticPath := filepath.Join(apiHandler.webDir, "static")
	fs := http.FileServer(http.Dir(staticPath))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r)
}
