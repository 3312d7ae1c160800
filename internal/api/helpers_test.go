package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/student-registry/internal/audit"
	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/infrastructure/config"
	"github.com/nerrad567/student-registry/internal/infrastructure/database"
	"github.com/nerrad567/student-registry/internal/infrastructure/logging"
	"github.com/nerrad567/student-registry/internal/staff"
	"github.com/nerrad567/student-registry/internal/student"
	_ "github.com/nerrad567/student-registry/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (p *recordingPublisher) Publish(e audit.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return nil
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.EntityType+"/"+e.Action)
	}
	return out
}

// recordingLogins captures login telemetry.
type recordingLogins struct {
	mu       sync.Mutex
	outcomes []string
}

func (l *recordingLogins) WriteLoginAttempt(outcome string, _ int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcome)
}

// testEnv is a fully wired server over a temp-file SQLite database.
type testEnv struct {
	srv       *Server
	router    http.Handler
	db        *database.DB
	staffRepo *auth.SQLiteStaffRepository
	tokens    *auth.TokenService
	auditRepo *audit.SQLiteRepository
	events    *recordingPublisher
	logins    *recordingLogins
}

type envOption func(*Deps)

func withRateLimit(rpm int) envOption {
	return func(d *Deps) {
		d.Security.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: rpm}
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "registry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
	metrics := NewMetrics()

	staffRepo := auth.NewStaffRepository(db.DB)
	policy := auth.NewPolicy(staffRepo, auth.WithDecisionObserver(metrics.ObserveDecision))
	authSvc, err := auth.NewService(staffRepo, policy, log.Logger)
	if err != nil {
		t.Fatalf("auth.NewService() error = %v", err)
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:   testSecret,
		Issuer:   "student-registry",
		Audience: "student-registry-api",
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	students := student.NewService(student.NewSQLiteRepository(db.DB), policy)
	staffSvc := staff.NewService(staffRepo, policy, students, log.Logger, 0)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	env := &testEnv{
		db:        db,
		staffRepo: staffRepo,
		tokens:    tokens,
		auditRepo: auditRepo,
		events:    &recordingPublisher{},
		logins:    &recordingLogins{},
	}

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:    log,
		DB:        db,
		Tokens:    tokens,
		Auth:      authSvc,
		Policy:    policy,
		Staff:     staffSvc,
		Students:  students,
		AuditRepo: auditRepo,
		Events:    env.events,
		Metrics:   metrics,
		Logins:    env.logins,
		Version:   "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.trail.run(ctx)
	t.Cleanup(func() {
		cancel()
		srv.trail.wait()
	})

	env.srv = srv
	env.router = srv.buildRouter()
	return env
}

// seed inserts a staff member with role directly and returns it with a
// valid session token.
func (e *testEnv) seed(t *testing.T, email string, role auth.Permission) (*auth.Staff, string) {
	t.Helper()
	st := &auth.Staff{Username: email, Email: email, PasswordHash: "unused"}
	if err := e.staffRepo.Register(context.Background(), st, func(int) (auth.Permission, error) { return role, nil }); err != nil {
		t.Fatalf("seeding %s: %v", email, err)
	}
	token, _, err := e.tokens.Issue(st)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return st, token
}

// do sends a request through the router. body is JSON-encoded unless it is
// a string, which is sent verbatim.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// expect fails the test unless w has the wanted status.
func expect(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, want, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %s: %v", w.Body.String(), err)
	}
	return v
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
