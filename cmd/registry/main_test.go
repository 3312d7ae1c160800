package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a minimal config to a temp dir and returns its path.
func writeConfig(t *testing.T, dbPath string, port int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")

	content := fmt.Sprintf(`
database:
  path: %q
  wal_mode: true
  busy_timeout: 5

api:
  host: "127.0.0.1"
  port: %d
  timeouts:
    read: 5
    write: 5
    idle: 5

security:
  jwt:
    secret: %q
    access_token_ttl: 15

logging:
  level: error
  format: text
  output: stderr

mqtt:
  enabled: false

influxdb:
  enabled: false
`, dbPath, port, testJWTSecret)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestParseFlags(t *testing.T) {
	t.Setenv("REGISTRY_CONFIG", "")

	tests := []struct {
		name    string
		args    []string
		env     string
		want    string
		wantErr bool
	}{
		{"default", nil, "", defaultConfigPath, false},
		{"env override", nil, "/from/env.yaml", "/from/env.yaml", false},
		{"flag wins", []string{"--config", "/from/flag.yaml"}, "/from/env.yaml", "/from/flag.yaml", false},
		{"short flag", []string{"-c", "/short.yaml"}, "", "/short.yaml", false},
		{"unknown flag", []string{"--nope"}, "", "", true},
		{"positional", []string{"serve"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REGISTRY_CONFIG", tt.env)
			opts, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && opts.configPath != tt.want {
				t.Errorf("configPath = %q, want %q", opts.configPath, tt.want)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	err := run(context.Background(), []string{"--help"})
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("run(--help) error = %v, want pflag.ErrHelp", err)
	}
}

func TestRun_Version(t *testing.T) {
	if err := run(context.Background(), []string{"--version"}); err != nil {
		t.Errorf("run(--version) error = %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"--config", "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config failure", err)
	}
}

func TestRun_MissingJWTSecret(t *testing.T) {
	t.Setenv("REGISTRY_JWT_SECRET", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  path: /tmp/x.db\n"), 0600); err != nil {
		t.Fatal(err)
	}

	err := run(context.Background(), []string{"--config", path})
	if err == nil || !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("run() error = %v, want jwt secret validation failure", err)
	}
}

// TestRun_ServesUntilCancelled starts the full process with optional
// backends disabled, checks the health endpoint and shuts down.
func TestRun_ServesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	cfgPath := writeConfig(t, filepath.Join(dir, "registry.db"), port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"--config", cfgPath}) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	var status int
	for time.Now().Before(deadline) {
		resp, err := http.Get(url) //nolint:noctx // test helper
		if err == nil {
			status = resp.StatusCode
			resp.Body.Close()
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status != http.StatusOK {
		cancel()
		t.Fatalf("health status = %d, want 200", status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	if _, err := os.Stat(filepath.Join(dir, "registry.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

// TestRun_OptionalBackendsUnreachable verifies the service still starts when
// MQTT and InfluxDB are enabled but cannot be reached.
func TestRun_OptionalBackendsUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for connect timeouts")
	}
	dir := t.TempDir()
	port := freePort(t)
	cfgPath := writeConfig(t, filepath.Join(dir, "registry.db"), port)

	t.Setenv("REGISTRY_MQTT_ENABLED", "true")
	t.Setenv("REGISTRY_MQTT_HOST", "127.0.0.1")
	t.Setenv("REGISTRY_INFLUXDB_ENABLED", "true")
	t.Setenv("REGISTRY_INFLUXDB_URL", fmt.Sprintf("http://127.0.0.1:%d", freePort(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"--config", cfgPath}) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	for {
		select {
		case err := <-done:
			t.Fatalf("run() returned early: %v", err)
		case <-ctx.Done():
			t.Fatal("server never became healthy")
		case <-time.After(100 * time.Millisecond):
		}
		resp, err := http.Get(url) //nolint:noctx // test helper
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("health status = %d, want 200 with backends disabled", resp.StatusCode)
		}
		cancel()
		<-done
		return
	}
}
