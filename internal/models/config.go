// Package models holds the shortener's configuration, its persisted link
// record and the JSON shapes of its HTTP responses.
//
// Configuration is grouped per component (server, storage, admission, redis,
// codes, logging, metrics, observability). Defaults run a local development
// instance with nothing else installed; Validate runs at load time so a bad
// file stops the process before it serves.
package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Counter store type constants
const (
	CounterStoreMemory = "memory"
	CounterStoreRedis  = "redis"
)

// Deployment environments. Only development is a trusted local context in
// which the transport peer address identifies the client.
const (
	EnvironmentDevelopment = "dev"
	EnvironmentProduction  = "prd"
)

// MinCodeLength is the shortest code the allocator generates.
const MinCodeLength = 4

// Config is the root configuration structure containing all service settings.
type Config struct {
	Environment   string              `yaml:"environment" json:"environment"`
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Admission     AdmissionConfig     `yaml:"admission" json:"admission"`
	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	Codes         CodesConfig         `yaml:"codes" json:"codes"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	PublicURL    string        `yaml:"public_url" json:"public_url"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// AdmissionConfig configures per-route rate limiting.
type AdmissionConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Store           string        `yaml:"store" json:"store"`
	ClientIPHeader  string        `yaml:"client_ip_header" json:"client_ip_header"`
	StoreTimeout    time.Duration `yaml:"store_timeout" json:"store_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	Routes          RouteLimits   `yaml:"routes" json:"routes"`
}

// RouteLimits holds requests per minute for each protected route.
type RouteLimits struct {
	Index    int `yaml:"index" json:"index"`
	Create   int `yaml:"create" json:"create"`
	Redirect int `yaml:"redirect" json:"redirect"`
	Preview  int `yaml:"preview" json:"preview"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Username     string        `yaml:"username" json:"username"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
}

// CodesConfig configures short code allocation.
type CodesConfig struct {
	MaxLength   int           `yaml:"max_length" json:"max_length"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration suitable for local development:
// in-memory storage and counter store, and the per-route rates of the
// public service (create 40, index 60, redirect 60, preview 30 per minute).
func NewDefaultConfig() *Config {
	return &Config{
		Environment: EnvironmentDevelopment,
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
		},
		Admission: AdmissionConfig{
			Enabled:         true,
			Store:           CounterStoreMemory,
			ClientIPHeader:  "X-Real-IP",
			StoreTimeout:    500 * time.Millisecond,
			CleanupInterval: 5 * time.Minute,
			Routes: RouteLimits{
				Index:    60,
				Create:   40,
				Redirect: 60,
				Preview:  30,
			},
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   1,
			KeyPrefix:    "shortener:ratelimit:",
		},
		Codes: CodesConfig{
			MaxLength:   8,
			MaxAttempts: 32,
			Timeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "shortener",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

// IsTrustedContext reports whether client addresses may be taken from the
// transport peer instead of the trusted proxy header.
func (c *Config) IsTrustedContext() bool {
	return c.Environment == EnvironmentDevelopment
}

// ShortURLBase returns the origin short URLs are built on. Anything other
// than local development is served over HTTPS.
func (c *Config) ShortURLBase() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	if c.IsTrustedContext() {
		return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	return fmt.Sprintf("https://%s", c.Server.Host)
}

func (c *Config) Validate() error {
	if c.Environment != EnvironmentDevelopment && c.Environment != EnvironmentProduction {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Admission.Validate(c.IsTrustedContext()); err != nil {
		return fmt.Errorf("invalid admission config: %w", err)
	}

	if c.Admission.Enabled && c.Admission.Store == CounterStoreRedis {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis config: %w", err)
		}
	}

	if err := c.Codes.Validate(); err != nil {
		return fmt.Errorf("invalid codes config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

func (sc *ServerConfig) Validate() error {
	if !validPort(sc.Port) {
		return errors.New("port must be between 1 and 65535")
	}
	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"read", sc.ReadTimeout},
		{"write", sc.WriteTimeout},
		{"idle", sc.IdleTimeout},
	}
	for _, t := range timeouts {
		if t.d < 0 {
			return fmt.Errorf("%s timeout cannot be negative", t.name)
		}
	}

	switch {
	case !sc.TLSEnabled:
		return nil
	case sc.TLSCertFile == "":
		return errors.New("TLS cert file is required when TLS is enabled")
	case sc.TLSKeyFile == "":
		return errors.New("TLS key file is required when TLS is enabled")
	}
	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
}

// Validate checks the admission settings. Outside a trusted context the
// client IP header is mandatory; without it no request could be attributed.
func (ac *AdmissionConfig) Validate(trustedContext bool) error {
	if !ac.Enabled {
		return nil
	}

	if ac.Store != CounterStoreMemory && ac.Store != CounterStoreRedis {
		return fmt.Errorf("invalid counter store: %s", ac.Store)
	}

	if !trustedContext && ac.ClientIPHeader == "" {
		return errors.New("client IP header is required outside development")
	}

	if ac.StoreTimeout < 0 {
		return errors.New("store timeout cannot be negative")
	}

	if ac.CleanupInterval < 0 {
		return errors.New("cleanup interval cannot be negative")
	}

	routes := map[string]int{
		"index":    ac.Routes.Index,
		"create":   ac.Routes.Create,
		"redirect": ac.Routes.Redirect,
		"preview":  ac.Routes.Preview,
	}
	for name, rate := range routes {
		if rate <= 0 {
			return fmt.Errorf("rate for route %s must be positive", name)
		}
	}

	return nil
}

func (rc *RedisConfig) Validate() error {
	if rc.Addr == "" {
		return errors.New("Redis address is required when the counter store is redis")
	}
	if rc.DB < 0 {
		return errors.New("Redis DB cannot be negative")
	}
	if rc.PoolSize < 0 {
		return errors.New("Redis pool size cannot be negative")
	}
	return nil
}

func (cc *CodesConfig) Validate() error {
	if cc.MaxLength < MinCodeLength {
		return fmt.Errorf("max code length must be at least %d", MinCodeLength)
	}
	if cc.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	if cc.Timeout < 0 {
		return errors.New("code allocation timeout cannot be negative")
	}
	return nil
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
	logOutputs = []string{"stdout", "stderr", "file"}
)

func (lc *LoggingConfig) Validate() error {
	switch {
	case !slices.Contains(logLevels, lc.Level):
		return fmt.Errorf("invalid log level: %s", lc.Level)
	case !slices.Contains(logFormats, lc.Format):
		return fmt.Errorf("invalid log format: %s", lc.Format)
	case !slices.Contains(logOutputs, lc.Output):
		return fmt.Errorf("invalid log output: %s", lc.Output)
	case lc.Output == "file" && lc.FilePath == "":
		return errors.New("file path is required when output is file")
	}
	return nil
}

// Validate is a no-op while metrics are disabled.
func (mc *MetricsConfig) Validate() error {
	switch {
	case !mc.Enabled:
		return nil
	case mc.Path == "" || !strings.HasPrefix(mc.Path, "/"):
		return fmt.Errorf("metrics path must start with /: %q", mc.Path)
	case !validPort(mc.Port):
		return errors.New("metrics port must be between 1 and 65535")
	}
	return nil
}
