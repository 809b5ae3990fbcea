package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/odnarb/bigfoot-map/internal/config"
	"github.com/odnarb/bigfoot-map/internal/metrics"
	"github.com/odnarb/bigfoot-map/internal/service"
	"github.com/rs/zerolog/log"
)

// Dependencies are the collaborators the router needs.
type Dependencies struct {
	Reports *service.ReportService
	Auth    AuthProvider
	Server  config.ServerConfig
}

// SetupRoutes configures the router and wraps it in CORS handling.
func SetupRoutes(deps Dependencies) http.Handler {
	r := mux.NewRouter()

	r.Use(metrics.MetricsMiddleware)
	r.Use(RequestLogger)

	r.NotFoundHandler = RequestLogger(http.HandlerFunc(notFoundHandler))
	r.MethodNotAllowedHandler = RequestLogger(http.HandlerFunc(notFoundHandler))

	optional := OptionalAuth(deps.Auth)
	required := RequireAuth(deps.Auth)
	limit := rateLimiter(deps.Server)

	authHandlers := NewAuthHandlers(deps.Auth)
	reportHandlers := NewReportHandlers(deps.Reports)

	r.HandleFunc("/api", authHandlers.InfoHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/health", authHandlers.HealthHandler).Methods(http.MethodGet)

	r.Handle("/api/auth/login", limit(http.HandlerFunc(authHandlers.LoginHandler))).Methods(http.MethodPost)
	r.Handle("/api/auth/me", required(http.HandlerFunc(authHandlers.MeHandler))).Methods(http.MethodGet)

	// static segments are registered before /{id}
	r.Handle("/api/reports", optional(http.HandlerFunc(reportHandlers.ListReportsHandler))).Methods(http.MethodGet)
	r.Handle("/api/reports", limit(optional(http.HandlerFunc(reportHandlers.CreateReportHandler)))).Methods(http.MethodPost)
	r.Handle("/api/reports/summary", optional(http.HandlerFunc(reportHandlers.SummaryHandler))).Methods(http.MethodGet)
	r.Handle("/api/reports/export", optional(http.HandlerFunc(reportHandlers.ExportHandler))).Methods(http.MethodGet)
	r.Handle("/api/reports/{id}", optional(http.HandlerFunc(reportHandlers.GetReportHandler))).Methods(http.MethodGet)
	r.Handle("/api/reports/{id}", limit(required(http.HandlerFunc(reportHandlers.DeleteReportHandler)))).Methods(http.MethodDelete)
	r.Handle("/api/reports/{id}/vote", limit(optional(http.HandlerFunc(reportHandlers.VoteHandler)))).Methods(http.MethodPost)
	r.Handle("/api/reports/{id}/triage", limit(required(http.HandlerFunc(reportHandlers.TriageHandler)))).Methods(http.MethodPatch)

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	log.Info().
		Strs("clientOrigins", deps.Server.ClientOrigins).
		Int("rateLimitRequests", deps.Server.RateLimitRequests).
		Msg("Routes configured")

	return cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.ClientOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{AuthorizationHeader, "Content-Type", ClientIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}

// rateLimiter limits mutating routes per client IP. A zero request budget
// disables limiting.
func rateLimiter(cfg config.ServerConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		cfg.RateLimitRequests,
		cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitedHandler),
	)
}

// RequestLogger tags each request with an id and logs it once served.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)

		rw, status := metrics.StatusRecorder(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		log.Info().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("route", metrics.RouteLabel(r)).
			Int("status", status()).
			Dur("duration", time.Since(start)).
			Str("remoteAddr", r.RemoteAddr).
			Msg(LogRequestServed)
	})
}
