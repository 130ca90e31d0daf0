package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

// Переменные окружения перекрывают секреты из файла.
const (
	EnvJWTSecret    = "AUTH_JWT_SECRET"
	EnvDatabaseURL  = "AUTH_DATABASE_URL"
	EnvSMTPPassword = "AUTH_SMTP_PASSWORD"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	BodyLimitBytes  int64         `yaml:"body_limit_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	// TrustedProxies: только им верим X-Forwarded-For; пусто: клиент = RemoteAddr.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // postgres | pgx | memory
	DSN         string `yaml:"url"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	ResetTTL        time.Duration `yaml:"reset_ttl"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
	HashConcurrency int           `yaml:"hash_concurrency"`
	TokenBytes      int           `yaml:"token_bytes"`
}

type EmailConfig struct {
	SMTPHost     string        `yaml:"smtp_host"`
	SMTPPort     int           `yaml:"smtp_port"`
	SMTPUser     string        `yaml:"smtp_user"`
	SMTPPassword string        `yaml:"smtp_password"`
	FromEmail    string        `yaml:"from_email"`
	VerifyURL    string        `yaml:"verify_url"`
	ResetURL     string        `yaml:"reset_url"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// DryRun: письма не отправляются, ссылки пишутся в лог
	DryRun bool `yaml:"dry_run"`
}

// RateLimitConfig: пустой RedisAddr отключает лимитер.
type RateLimitConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Requests      int           `yaml:"requests"`
	Window        time.Duration `yaml:"window"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Email     EmailConfig     `yaml:"email"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// LoadConfig reads the YAML file at path, fills defaults, applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.BodyLimitBytes == 0 {
		c.Server.BodyLimitBytes = 1 << 20
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}

	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}
	if c.Auth.VerificationTTL == 0 {
		c.Auth.VerificationTTL = 15 * time.Minute
	}
	if c.Auth.ResetTTL == 0 {
		c.Auth.ResetTTL = 15 * time.Minute
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	if c.Auth.TokenBytes == 0 {
		c.Auth.TokenBytes = 32
	}

	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.VerifyURL == "" {
		c.Email.VerifyURL = fmt.Sprintf("http://localhost:%d/api/v1/verify-email", c.Server.Port)
	}
	if c.Email.ResetURL == "" {
		c.Email.ResetURL = fmt.Sprintf("http://localhost:%d/reset-password", c.Server.Port)
	}
	if c.Email.SendTimeout == 0 {
		c.Email.SendTimeout = 10 * time.Second
	}
	if c.Email.MaxAttempts == 0 {
		c.Email.MaxAttempts = 3
	}
	if c.Email.RetryBackoff == 0 {
		c.Email.RetryBackoff = 500 * time.Millisecond
	}

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 15 * time.Minute
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// ApplyEnv overrides secrets from the environment; lookup is os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvSMTPPassword); ok && v != "" {
		c.Email.SMTPPassword = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.VerificationTTL <= 0 || c.Auth.ResetTTL <= 0 {
		errs = append(errs, errors.New("auth ttl values must be positive"))
	}
	if c.Auth.TokenBytes < 32 {
		errs = append(errs, errors.New("auth.token_bytes must be at least 32"))
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.url is required for driver "+c.Database.Driver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if !c.Email.DryRun && (c.Email.SMTPHost == "" || c.Email.FromEmail == "") {
		errs = append(errs, errors.New("email.smtp_host and email.from_email are required unless email.dry_run is set"))
	}
	if c.RateLimit.RedisAddr != "" && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit.requests and rate_limit.window must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not supported", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }
