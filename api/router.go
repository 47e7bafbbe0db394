package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/api/router/handlers"
	"github.com/iluobei/miaomiaowu-sub001/config"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures the API router.
// All registered paths are relative to the /api base path.
func NewRouter() (http.Handler, error) {
	jwtSecret, err := database.EnsureJWTSecret(config.AppConfig.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("preparing auth secret: %w", err)
	}
	handlers.InitAuth([]byte(jwtSecret), time.Duration(config.AppConfig.Auth.TokenTTLMinutes)*time.Minute)

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	router.Use(observeRequests)

	// Public routes
	handlers.RegisterHealthRoutes(router)
	handlers.RegisterVersionRoutes(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/auth/login", handlers.LoginHandler)

	// Authenticated routes
	router.Group(func(private chi.Router) {
		private.Use(handlers.AuthMiddleware)
		private.Use(middleware.Timeout(60 * time.Second))

		handlers.RegisterAuthRoutes(private)
		handlers.RegisterConfigFileRoutes(private)
		handlers.RegisterEditSessionRoutes(private)
		handlers.RegisterSubscriptionRoutes(private)
		handlers.RegisterNodeRoutes(private)
		handlers.RegisterProbeRoutes(private)
		handlers.RegisterRelayTrafficRoutes(private)
		handlers.RegisterSettingsRoutes(private)
		handlers.RegisterBackupRoutes(private)

		// Placeholder/Not Implemented Yet routes
		handlers.RegisterRuleProviderRoutes(private)
	})

	// The live traffic stream is a long-lived websocket, kept outside the
	// request timeout middleware.
	router.Group(func(stream chi.Router) {
		stream.Use(handlers.AuthMiddleware)
		handlers.RegisterProbeStreamRoutes(stream)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.Error("API SUB-ROUTER CATCH-ALL: Unhandled route relative to /api: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return router, nil
}

// observeRequests records one prometheus observation per request, labeled with
// the matched chi route pattern rather than the raw path.
func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}
