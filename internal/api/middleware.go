package api

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/unrolled/secure"

	"github.com/nerrad567/student-registry/internal/auth"
)

const (
	headerRequestID = "X-Request-ID"

	// maxRequestBodySize caps every request body at 1 MiB.
	maxRequestBodySize = 1 << 20

	hstsMaxAge = 365 * 24 * time.Hour

	defaultCORSMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	defaultCORSHeaders = "Authorization, Content-Type, X-Request-ID"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorIDKey
)

// requestIDMiddleware echoes a client X-Request-ID or mints a UUID.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string) //nolint:errcheck // absent means empty
	return id
}

// loggingMiddleware writes one entry per request. Server errors log at warn.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := responseStatus(ww)
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

// recoveryMiddleware turns a handler panic into a JSON 500. http.ErrAbortHandler
// is re-raised so net/http can drop the connection.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
				panic(rec)
			}
			s.logger.Error("handler panicked",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestIDFrom(r.Context()),
				"stack", string(debug.Stack()),
			)
			writeInternalError(w, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware applies unrolled/secure. HSTS is sent only when
// this process terminates TLS.
func (s *Server) securityHeadersMiddleware() func(http.Handler) http.Handler {
	opts := secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	}
	if s.cfg.TLS.Enabled {
		opts.STSSeconds = int64(hstsMaxAge / time.Second)
		opts.STSIncludeSubdomains = true
	}
	sm := secure.New(opts)
	sm.SetBadHostHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Warn("request rejected by host policy", "host", r.Host, "path", r.URL.Path)
		writeBadRequest(w, "request blocked")
	}))
	return sm.Handler
}

// corsMiddleware answers preflights and reflects allowed origins. No
// configured origins means any origin is allowed.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	origins := s.cfg.CORS.AllowedOrigins
	methods := joinOr(s.cfg.CORS.AllowedMethods, defaultCORSMethods)
	headers := joinOr(s.cfg.CORS.AllowedHeaders, defaultCORSHeaders)

	allowed := func(origin string) bool {
		return len(origins) == 0 || slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && allowed(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identityMiddleware stores the caller's staff id in the request context.
// Anything short of a valid bearer token resolves to auth.Unauthenticated
// and the request carries on; policy checks refuse it where needed.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := auth.Unauthenticated
		if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
			actorID = s.tokens.ValidateAndResolve(token)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorIDKey, actorID)))
	})
}

// actorFromContext returns the identity set by identityMiddleware.
func actorFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(actorIDKey).(int64); ok {
		return id
	}
	return auth.Unauthenticated
}

// responseStatus treats a handler that never called WriteHeader as 200.
func responseStatus(ww middleware.WrapResponseWriter) int {
	if st := ww.Status(); st != 0 {
		return st
	}
	return http.StatusOK
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}
