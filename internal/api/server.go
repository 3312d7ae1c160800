package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/student-registry/internal/audit"
	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/events"
	"github.com/nerrad567/student-registry/internal/infrastructure/config"
	"github.com/nerrad567/student-registry/internal/infrastructure/logging"
	"github.com/nerrad567/student-registry/internal/staff"
	"github.com/nerrad567/student-registry/internal/student"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by the database and the optional backends.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// LoginRecorder receives one call per login attempt. staffID is zero when
// the email was unknown.
type LoginRecorder interface {
	WriteLoginAttempt(outcome string, staffID int64)
}

// Deps holds the dependencies required by the API server.
// MQTT and Influx are optional; leave them nil when the backend is disabled.
type Deps struct {
	Config    config.APIConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	DB        HealthChecker
	Tokens    *auth.TokenService
	Auth      *auth.Service
	Policy    *auth.Policy
	Staff     *staff.Service
	Students  *student.Service
	AuditRepo audit.Repository
	Events    events.Publisher
	Metrics   *Metrics
	MQTT      HealthChecker
	Influx    HealthChecker
	Logins    LoginRecorder
	Version   string
}

// Server is the HTTP API server for the student registry.
type Server struct {
	cfg      config.APIConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	db       HealthChecker
	tokens   *auth.TokenService
	auth     *auth.Service
	policy   *auth.Policy
	staff    *staff.Service
	students *student.Service
	metrics  *Metrics
	mqtt     HealthChecker
	influx   HealthChecker
	logins   LoginRecorder
	version  string

	trail *auditTrail

	listener net.Listener
	server   *http.Server
	cancel   context.CancelFunc
	once     sync.Once
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tokens == nil || deps.Auth == nil || deps.Policy == nil {
		return nil, fmt.Errorf("token service, auth service and policy are required")
	}
	if deps.Staff == nil || deps.Students == nil {
		return nil, fmt.Errorf("staff and student services are required")
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	logger := deps.Logger.With("component", "api")
	return &Server{
		cfg:      deps.Config,
		secCfg:   deps.Security,
		logger:   logger,
		db:       deps.DB,
		tokens:   deps.Tokens,
		auth:     deps.Auth,
		policy:   deps.Policy,
		staff:    deps.Staff,
		students: deps.Students,
		metrics:  deps.Metrics,
		mqtt:     deps.MQTT,
		influx:   deps.Influx,
		logins:   deps.Logins,
		version:  deps.Version,
		trail:    newAuditTrail(deps.AuditRepo, deps.Events, logger.Logger, deps.Metrics.ObserveAuditDrop),
	}, nil
}

// Start binds the listen address, starts the audit drain and serves HTTP in a
// background goroutine. A bind failure is returned and nothing is started.
// Cancelling ctx does not stop the server or the drain; use Close.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Address(), err)
	}

	// Only Close stops the drain, after Shutdown has let handlers finish.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go s.trail.run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting requests, waits up to 10 seconds for in-flight
// requests and flushes queued audit entries.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	var err error
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutting down API server: %w", shutdownErr)
		}

		// Unless Shutdown timed out, handlers have returned and the queue
		// is final.
		s.cancel()
		s.trail.wait()
	})
	return err
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
