// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < .env < env < flags
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/mapping"
	"github.com/sheetdex/sheetdex/pkg/storage/s3"
	"github.com/sheetdex/sheetdex/pkg/store"
	"github.com/sheetdex/sheetdex/pkg/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHEETDEX_"

// Config holds all sheetdex configuration.
type Config struct {
	Version int `yaml:"version"`

	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RunLog    RunLogConfig    `yaml:"runlog"`
	S3        S3Config        `yaml:"s3"`
	Server    ServerConfig    `yaml:"server"`
}

// StoreConfig locates the document store.
type StoreConfig struct {
	Addresses          []string      `yaml:"addresses"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	APIKey             string        `yaml:"api_key"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// IngestConfig controls mapping and submission.
type IngestConfig struct {
	DefaultIndex    string `yaml:"default_index"`
	Collision       string `yaml:"collision"` // last_wins | reject
	QuietTruncation bool   `yaml:"quiet_truncation"`
	Refresh         string `yaml:"refresh"` // "" | true | false | wait_for
	Workers         int    `yaml:"workers"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	ServiceName   string  `yaml:"service_name"`
	Insecure      bool    `yaml:"insecure"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// RunLogConfig selects where ingest run records are kept.
type RunLogConfig struct {
	Backend string         `yaml:"backend"` // file | redis | s3 | none
	Dir     string         `yaml:"dir"`
	Redis   RedisConfig    `yaml:"redis"`
	S3      RunLogS3Config `yaml:"s3"`
}

// RedisConfig for the redis run ledger.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// RunLogS3Config for the S3 run ledger.
type RunLogS3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// S3Config for s3:// sources and the S3 run ledger.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ServerConfig for the HTTP API.
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	MaxUploadSize string `yaml:"max_upload_size"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version: 1,
		Store: StoreConfig{
			Addresses: []string{store.DefaultAddress},
		},
		Ingest: IngestConfig{
			DefaultIndex: "excel_data",
			Collision:    mapping.CollisionLastWins.String(),
			Workers:      2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Endpoint:      "localhost:4317",
			ServiceName:   "sheetdex",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
		RunLog: RunLogConfig{
			Backend: "file",
			Dir:     filepath.Join(homeDir, ".sheetdex", "runs"),
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "sheetdex:",
				TTL:     30 * 24 * time.Hour,
			},
			S3: RunLogS3Config{Prefix: "sheetdex/runs/"},
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Server: ServerConfig{
			Host:          "localhost",
			Port:          8080,
			MaxUploadSize: "50MB",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string

	// SearchPaths overrides the system, user and project file locations.
	SearchPaths []string
	// ExplicitPath is loaded last among files and must exist.
	ExplicitPath string
	// EnvFile is read with godotenv before environment overrides.
	EnvFile string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config:  Default(),
		EnvFile: ".env",
	}
}

// Load loads configuration from all sources in priority order and validates it.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	paths := m.SearchPaths
	if paths == nil {
		paths = defaultPaths()
	}
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return sderrors.ConfigInvalid(path, err.Error())
			}
			continue
		}
		m.paths = append(m.paths, path)
	}

	if m.ExplicitPath != "" {
		if err := m.loadFile(m.ExplicitPath); err != nil {
			return sderrors.ConfigInvalid(m.ExplicitPath, err.Error())
		}
		m.paths = append(m.paths, m.ExplicitPath)
	}

	// .env never overrides variables already set in the process.
	if m.EnvFile != "" {
		if err := godotenv.Load(m.EnvFile); err != nil && !os.IsNotExist(err) {
			return sderrors.ConfigInvalid(m.EnvFile, err.Error())
		}
	}
	m.loadEnv()

	return m.config.Validate()
}

func defaultPaths() []string {
	var paths []string
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/sheetdex/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".sheetdex", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".sheetdex.yaml"))
	}
	return paths
}

func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}
	m.merge(&partial)
	return nil
}

// merge copies non-zero values from src into the current config.
func (m *Manager) merge(src *Config) {
	c := m.config

	if len(src.Store.Addresses) > 0 {
		c.Store.Addresses = src.Store.Addresses
	}
	setString(&c.Store.Username, src.Store.Username)
	setString(&c.Store.Password, src.Store.Password)
	setString(&c.Store.APIKey, src.Store.APIKey)
	if src.Store.Timeout != 0 {
		c.Store.Timeout = src.Store.Timeout
	}
	if src.Store.InsecureSkipVerify {
		c.Store.InsecureSkipVerify = true
	}

	setString(&c.Ingest.DefaultIndex, src.Ingest.DefaultIndex)
	setString(&c.Ingest.Collision, src.Ingest.Collision)
	setString(&c.Ingest.Refresh, src.Ingest.Refresh)
	if src.Ingest.QuietTruncation {
		c.Ingest.QuietTruncation = true
	}
	if src.Ingest.Workers != 0 {
		c.Ingest.Workers = src.Ingest.Workers
	}

	setString(&c.Logging.Level, src.Logging.Level)
	setString(&c.Logging.Format, src.Logging.Format)

	if src.Telemetry.Enabled {
		c.Telemetry.Enabled = true
	}
	setString(&c.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setString(&c.Telemetry.ServiceName, src.Telemetry.ServiceName)
	if src.Telemetry.SamplingRatio != 0 {
		c.Telemetry.SamplingRatio = src.Telemetry.SamplingRatio
	}

	setString(&c.RunLog.Backend, src.RunLog.Backend)
	setString(&c.RunLog.Dir, src.RunLog.Dir)
	setString(&c.RunLog.Redis.Address, src.RunLog.Redis.Address)
	setString(&c.RunLog.Redis.Password, src.RunLog.Redis.Password)
	setString(&c.RunLog.Redis.Prefix, src.RunLog.Redis.Prefix)
	if src.RunLog.Redis.DB != 0 {
		c.RunLog.Redis.DB = src.RunLog.Redis.DB
	}
	if src.RunLog.Redis.TTL != 0 {
		c.RunLog.Redis.TTL = src.RunLog.Redis.TTL
	}
	setString(&c.RunLog.S3.Bucket, src.RunLog.S3.Bucket)
	setString(&c.RunLog.S3.Prefix, src.RunLog.S3.Prefix)

	setString(&c.S3.Region, src.S3.Region)
	setString(&c.S3.Endpoint, src.S3.Endpoint)
	setString(&c.S3.AccessKeyID, src.S3.AccessKeyID)
	setString(&c.S3.SecretAccessKey, src.S3.SecretAccessKey)
	if src.S3.PathStyle {
		c.S3.PathStyle = true
	}

	setString(&c.Server.Host, src.Server.Host)
	setString(&c.Server.MaxUploadSize, src.Server.MaxUploadSize)
	if src.Server.Port != 0 {
		c.Server.Port = src.Server.Port
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// loadEnv applies SHEETDEX_* and standard AWS variables.
func (m *Manager) loadEnv() {
	c := m.config

	if v := env("ES_ADDRESSES"); v != "" {
		c.Store.Addresses = splitList(v)
	}
	if v := env("ES_USERNAME"); v != "" {
		c.Store.Username = v
	}
	if v := env("ES_PASSWORD"); v != "" {
		c.Store.Password = v
	}
	if v := env("ES_API_KEY"); v != "" {
		c.Store.APIKey = v
	}
	if v := env("INDEX"); v != "" {
		c.Ingest.DefaultIndex = v
	}
	if v := env("COLLISION"); v != "" {
		c.Ingest.Collision = v
	}
	if v := env("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.Workers = n
		}
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := env("OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
	if v := env("RUNLOG_BACKEND"); v != "" {
		c.RunLog.Backend = v
	}
	if v := env("REDIS_ADDR"); v != "" {
		c.RunLog.Redis.Address = v
	}
	if v := env("RUNLOG_BUCKET"); v != "" {
		c.RunLog.S3.Bucket = v
	}
	if v := env("S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
		c.S3.PathStyle = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := env("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs sderrors.MultiError

	if len(c.Store.Addresses) == 0 {
		errs.Add(sderrors.ConfigInvalid("store.addresses", "at least one address is required"))
	}
	for _, a := range c.Store.Addresses {
		u, err := url.Parse(a)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.Add(sderrors.ConfigInvalid("store.addresses", fmt.Sprintf("invalid address %q", a)))
		}
	}

	switch strings.ToLower(c.Ingest.Collision) {
	case "last_wins", "reject":
	default:
		errs.Add(sderrors.ConfigInvalid("ingest.collision", "must be last_wins or reject"))
	}
	switch c.Ingest.Refresh {
	case "", "true", "false", "wait_for":
	default:
		errs.Add(sderrors.ConfigInvalid("ingest.refresh", "must be true, false or wait_for"))
	}
	if c.Ingest.Workers < 1 {
		errs.Add(sderrors.ConfigInvalid("ingest.workers", "must be at least 1"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.Add(sderrors.ConfigInvalid("logging.level", "must be debug, info, warn or error"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs.Add(sderrors.ConfigInvalid("logging.format", "must be text or json"))
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		errs.Add(sderrors.ConfigInvalid("telemetry.sampling_ratio", "must be between 0 and 1"))
	}

	switch c.RunLog.Backend {
	case "file", "none", "":
	case "redis":
		if c.RunLog.Redis.Address == "" {
			errs.Add(sderrors.ConfigInvalid("runlog.redis.address", "required for the redis backend"))
		}
	case "s3":
		if c.RunLog.S3.Bucket == "" {
			errs.Add(sderrors.ConfigInvalid("runlog.s3.bucket", "required for the s3 backend"))
		}
	default:
		errs.Add(sderrors.ConfigInvalid("runlog.backend", "must be file, redis, s3 or none"))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs.Add(sderrors.ConfigInvalid("server.port", "must be between 1 and 65535"))
	}
	if _, err := ParseSize(c.Server.MaxUploadSize); err != nil {
		errs.Add(sderrors.ConfigInvalid("server.max_upload_size", err.Error()))
	}

	return errs.Combined()
}

// ParseSize parses sizes such as "512KB", "50MB" or "1GB". A bare number is bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the files that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

// Save writes the current config to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// StoreConfig converts the store section for the store client.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Addresses:          c.Store.Addresses,
		Username:           c.Store.Username,
		Password:           c.Store.Password,
		APIKey:             c.Store.APIKey,
		Timeout:            c.Store.Timeout,
		InsecureSkipVerify: c.Store.InsecureSkipVerify,
		Refresh:            c.Ingest.Refresh,
	}
}

// TelemetryConfig converts the telemetry section.
func (c *Config) TelemetryConfig() telemetry.Config {
	tc := telemetry.DefaultConfig(c.Telemetry.ServiceName)
	tc.Enabled = c.Telemetry.Enabled
	tc.Endpoint = c.Telemetry.Endpoint
	tc.Insecure = c.Telemetry.Insecure
	tc.SamplingRatio = c.Telemetry.SamplingRatio
	return tc
}

// S3Config converts the s3 section.
func (c *Config) S3Config() s3.Config {
	sc := s3.DefaultConfig(c.S3.Region)
	sc.Endpoint = c.S3.Endpoint
	sc.UsePathStyle = c.S3.PathStyle
	sc.AccessKeyID = c.S3.AccessKeyID
	sc.SecretAccessKey = c.S3.SecretAccessKey
	return sc
}

// CollisionPolicy returns the configured header collision policy.
func (c *Config) CollisionPolicy() mapping.CollisionPolicy {
	return mapping.ParseCollisionPolicy(c.Ingest.Collision)
}
