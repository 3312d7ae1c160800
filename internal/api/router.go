package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// healthCheckTimeout bounds the dependency checks behind /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metrics.Middleware)
	r.Use(s.securityHeadersMiddleware())
	r.Use(s.corsMiddleware())
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Every route below sees the caller's resolved identity, which is
		// Unauthenticated when no valid token was sent. The services decide
		// whether that is acceptable.
		r.Group(func(r chi.Router) {
			r.Use(s.identityMiddleware)

			r.Route("/auth", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(s.authRateLimiter())
					r.Post("/register", s.handleRegister)
					r.Post("/login", s.handleLogin)
				})
				r.Get("/me", s.handleMe)
			})

			r.Route("/staff", func(r chi.Router) {
				r.Get("/", s.handleListStaff)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetStaff)
					r.Put("/", s.handleUpdateStaff)
					r.Delete("/", s.handleDeleteStaff)
					r.Patch("/role", s.handleUpdateRole)
					r.Get("/students", s.handleStaffStudents)
				})
			})

			r.Route("/students", func(r chi.Router) {
				r.Get("/", s.handleListStudents)
				r.Post("/", s.handleCreateStudent)
				r.Get("/mine", s.handleListMyStudents)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetStudent)
					r.Put("/", s.handleUpdateStudent)
					r.Delete("/", s.handleDeleteStudent)
					r.Patch("/owner", s.handleReassignStudent)
				})
			})

			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// authRateLimiter limits login and registration attempts per client IP.
// It is a pass-through when rate limiting is disabled.
func (s *Server) authRateLimiter() func(http.Handler) http.Handler {
	rl := s.secCfg.RateLimit
	if !rl.Enabled || rl.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(rl.RequestsPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many requests")
		}),
	)
}

// handleHealth reports the database and optional backends. The database is
// required; a failing MQTT or InfluxDB backend only degrades the status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := map[string]string{}

	check := func(name string, hc HealthChecker, required bool) {
		if hc == nil {
			checks[name] = "disabled"
			return
		}
		if err := hc.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			if required {
				status = "unavailable"
				code = http.StatusServiceUnavailable
			} else if status == "ok" {
				status = "degraded"
			}
			return
		}
		checks[name] = "ok"
	}
	check("database", s.db, true)
	check("mqtt", s.mqtt, false)
	check("influxdb", s.influx, false)

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
