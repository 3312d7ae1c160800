package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment variable overrides.
const EnvPrefix = "REGISTRY"

// Config is the whole registry configuration. See Load for precedence.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig locates and tunes the SQLite file.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig is the HTTP listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds http.Server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists allowed origins, methods and headers. No origins
// means any origin is accepted.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// SecurityConfig groups credential, session and rate-limit settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Password  PasswordConfig  `yaml:"password"`
}

// JWTConfig contains session token settings.
// Secret, issuer and audience are read once at start-up and never mutated.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	Issuer         string `yaml:"issuer"`
	Audience       string `yaml:"audience"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// RateLimitConfig limits requests to the login and register endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// PasswordConfig contains password policy settings.
type PasswordConfig struct {
	MinLength int `yaml:"min_length"`
}

// LoggingConfig selects level (debug, info, warn, error), format (json,
// text) and output (stdout, stderr).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig enables event publication to a broker.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig addresses the broker. TLS switches the scheme to ssl://.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig is optional; empty Username connects anonymously.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig enables login and authorization telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// envOverrides lists every setting that may be supplied through the
// environment. Zero values leave the file value untouched.
type envOverrides struct {
	DatabasePath   string `envconfig:"DATABASE_PATH"`
	APIHost        string `envconfig:"API_HOST"`
	APIPort        int    `envconfig:"API_PORT"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	JWTIssuer      string `envconfig:"JWT_ISSUER"`
	JWTAudience    string `envconfig:"JWT_AUDIENCE"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	LogFormat      string `envconfig:"LOG_FORMAT"`
	MQTTEnabled    *bool  `envconfig:"MQTT_ENABLED"`
	MQTTHost       string `envconfig:"MQTT_HOST"`
	MQTTUsername   string `envconfig:"MQTT_USERNAME"`
	MQTTPassword   string `envconfig:"MQTT_PASSWORD"`
	InfluxEnabled  *bool  `envconfig:"INFLUXDB_ENABLED"`
	InfluxURL      string `envconfig:"INFLUXDB_URL"`
	InfluxToken    string `envconfig:"INFLUXDB_TOKEN"`
	RateLimitRPM   int    `envconfig:"RATE_LIMIT_RPM"`
}

// Load builds the configuration in three layers: defaults, then the YAML
// file at path, then REGISTRY_* environment variables. The result is
// validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig is the base layer of Load. JWT.Secret is left empty so a
// deployment must supply one.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "student-registry",
		},
		Database: DatabaseConfig{
			Path:        "./data/registry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "student-registry",
				Audience:       "student-registry-api",
				AccessTokenTTL: 60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 10,
			},
			Password: PasswordConfig{
				MinLength: 6,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "student-registry",
			},
			QoS:         1,
			TopicPrefix: "registry",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "registry",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies REGISTRY_* environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	setString(&cfg.Database.Path, env.DatabasePath)
	setString(&cfg.API.Host, env.APIHost)
	if env.APIPort != 0 {
		cfg.API.Port = env.APIPort
	}

	// JWT secret should always come from the environment in production.
	setString(&cfg.Security.JWT.Secret, env.JWTSecret)
	setString(&cfg.Security.JWT.Issuer, env.JWTIssuer)
	setString(&cfg.Security.JWT.Audience, env.JWTAudience)
	if env.RateLimitRPM != 0 {
		cfg.Security.RateLimit.RequestsPerMinute = env.RateLimitRPM
	}

	setString(&cfg.Logging.Level, env.LogLevel)
	setString(&cfg.Logging.Format, env.LogFormat)

	if env.MQTTEnabled != nil {
		cfg.MQTT.Enabled = *env.MQTTEnabled
	}
	setString(&cfg.MQTT.Broker.Host, env.MQTTHost)
	setString(&cfg.MQTT.Auth.Username, env.MQTTUsername)
	setString(&cfg.MQTT.Auth.Password, env.MQTTPassword)

	if env.InfluxEnabled != nil {
		cfg.InfluxDB.Enabled = *env.InfluxEnabled
	}
	setString(&cfg.InfluxDB.URL, env.InfluxURL)
	setString(&cfg.InfluxDB.Token, env.InfluxToken)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// minJWTSecretLength is the shortest accepted HS256 signing secret.
const minJWTSecretLength = 32

// problems collects validation failures so they can be reported at once.
type problems []error

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Errorf(format, args...))
	}
}

// Validate reports every invalid setting in a single joined error.
func (c *Config) Validate() error {
	var p problems

	p.check(c.Database.Path != "", "database.path is required")

	p.check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port %d is outside 1..65535", c.API.Port)
	p.check(!c.API.TLS.Enabled || (c.API.TLS.CertFile != "" && c.API.TLS.KeyFile != ""),
		"api.tls needs both cert_file and key_file")

	jwt := c.Security.JWT
	switch {
	case jwt.Secret == "":
		p.check(false, "security.jwt.secret is required; set %s_JWT_SECRET", EnvPrefix)
	case len(jwt.Secret) < minJWTSecretLength:
		p.check(false, "security.jwt.secret must be at least %d characters", minJWTSecretLength)
	}
	p.check(jwt.Issuer != "", "security.jwt.issuer is required")
	p.check(jwt.Audience != "", "security.jwt.audience is required")
	p.check(jwt.AccessTokenTTL >= 1, "security.jwt.access_token_ttl must be at least one minute")

	rl := c.Security.RateLimit
	p.check(!rl.Enabled || rl.RequestsPerMinute >= 1,
		"security.rate_limit.requests_per_minute must be positive when rate limiting is on")
	p.check(c.Security.Password.MinLength >= 1, "security.password.min_length must be positive")

	if c.MQTT.Enabled {
		p.check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos %d is not 0, 1 or 2", c.MQTT.QoS)
		p.check(c.MQTT.Broker.Host != "", "mqtt.broker.host is required with mqtt enabled")
		p.check(c.MQTT.TopicPrefix != "", "mqtt.topic_prefix is required with mqtt enabled")
	}
	p.check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required with influxdb enabled")

	if len(p) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(p...))
	}
	return nil
}

// Address is the host:port the API listens on.
func (a APIConfig) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (t APITimeoutConfig) ReadTimeout() time.Duration  { return seconds(t.Read) }
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }
func (t APITimeoutConfig) IdleTimeout() time.Duration  { return seconds(t.Idle) }

// TTL is the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	return time.Duration(j.AccessTokenTTL) * time.Minute
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
