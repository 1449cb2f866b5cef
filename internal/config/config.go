package config

import (
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CLIENTDESK_"

// Config is the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Mailer     MailerConfig     `yaml:"mailer"`
	Generation GenerationConfig `yaml:"generation"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	AllowedIPs      []string      `yaml:"allowed_ips"` // IPs/CIDRs allowed to call the API, empty allows all
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains HTTPS settings: certificate files or ACME
type TLSConfig struct {
	Enabled  bool       `yaml:"enabled"`
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig contains Let's Encrypt settings
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	HTTPAddr string   `yaml:"http_addr"` // HTTP-01 challenge listener
}

// Database drivers
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// DatabaseConfig selects the document store
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // bolt, sqlite
	Path   string `yaml:"path"`
}

// Mail providers
const (
	ProviderResend  = "resend"
	ProviderMailgun = "mailgun"
	ProviderSES     = "ses"
	ProviderSMTP    = "smtp"
	ProviderSandbox = "sandbox"
	ProviderLog     = "log"
)

// MailerConfig contains the outgoing email provider settings
type MailerConfig struct {
	Provider    string        `yaml:"provider"`
	SenderEmail string        `yaml:"sender_email"` // Verified sending address
	SenderName  string        `yaml:"sender_name"`  // Used when a message has no display name
	Resend      ResendConfig  `yaml:"resend"`
	Mailgun     MailgunConfig `yaml:"mailgun"`
	SES         SESConfig     `yaml:"ses"`
	SMTP        SMTPConfig    `yaml:"smtp"`
	Sandbox     SandboxConfig `yaml:"sandbox"`
}

// ResendConfig contains Resend API settings
type ResendConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// MailgunConfig contains Mailgun API settings
type MailgunConfig struct {
	Domain  string `yaml:"domain"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // Set to the EU endpoint when needed
}

// SESConfig contains Amazon SES settings. Credentials come from the AWS default chain when empty.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	Endpoint         string `yaml:"endpoint"` // Override for SES compatible services
}

// SMTPConfig contains relay settings for the smtp provider
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	TLSMode  string        `yaml:"tls_mode"` // none, starttls, ssl
	Hostname string        `yaml:"hostname"` // EHLO name
	Timeout  time.Duration `yaml:"timeout"`
	DKIM     DKIMConfig    `yaml:"dkim"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// SandboxConfig controls the capturing provider
type SandboxConfig struct {
	SimulateErrors   bool    `yaml:"simulate_errors"`
	ErrorProbability float64 `yaml:"error_probability"`
}

// GenerationConfig contains the AI template drafting settings
type GenerationConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"` // OpenAI compatible endpoint
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// DispatchConfig contains bulk send settings
type DispatchConfig struct {
	Delay      time.Duration `yaml:"delay"`       // Pause between recipients
	RunHistory int           `yaml:"run_history"` // Finished runs kept in memory per owner
}

// RateLimitConfig contains send quotas
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Global        *LimitValues  `yaml:"global,omitempty"`
	DefaultOwner  *LimitValues  `yaml:"default_owner,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LimitValues contains rate limit values
type LimitValues struct {
	MessagesPerHour int `yaml:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Default: /metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // json, text
	SentryDSN string `yaml:"sentry_dsn"`
	Env       string `yaml:"env"`
}

// Load loads configuration from a YAML file and applies environment overrides.
// A .env file next to the working directory is read first when present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// applyEnv overrides secrets and deployment settings from the environment
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LISTEN_ADDR":         &c.Server.ListenAddr,
		"DATABASE_DRIVER":     &c.Database.Driver,
		"DATABASE_PATH":       &c.Database.Path,
		"MAILER_PROVIDER":     &c.Mailer.Provider,
		"SENDER_EMAIL":        &c.Mailer.SenderEmail,
		"SENDER_NAME":         &c.Mailer.SenderName,
		"RESEND_API_KEY":      &c.Mailer.Resend.APIKey,
		"MAILGUN_DOMAIN":      &c.Mailer.Mailgun.Domain,
		"MAILGUN_API_KEY":     &c.Mailer.Mailgun.APIKey,
		"SES_REGION":          &c.Mailer.SES.Region,
		"SES_ACCESS_KEY_ID":   &c.Mailer.SES.AccessKeyID,
		"SES_SECRET_KEY":      &c.Mailer.SES.SecretAccessKey,
		"SMTP_HOST":           &c.Mailer.SMTP.Host,
		"SMTP_USERNAME":       &c.Mailer.SMTP.Username,
		"SMTP_PASSWORD":       &c.Mailer.SMTP.Password,
		"GENERATION_API_KEY":  &c.Generation.APIKey,
		"GENERATION_BASE_URL": &c.Generation.BaseURL,
		"GENERATION_MODEL":    &c.Generation.Model,
		"LOG_LEVEL":           &c.Logging.Level,
		"LOG_FORMAT":          &c.Logging.Format,
		"SENTRY_DSN":          &c.Logging.SentryDSN,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sSMTP_PORT: %w", EnvPrefix, err)
		}
		c.Mailer.SMTP.Port = port
	}
	if v, ok := lookup(EnvPrefix + "DISPATCH_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sDISPATCH_DELAY: %w", EnvPrefix, err)
		}
		c.Dispatch.Delay = d
	}
	if v, ok := lookup(EnvPrefix + "GENERATION_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sGENERATION_ENABLED: %w", EnvPrefix, err)
		}
		c.Generation.Enabled = enabled
	}
	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20 // 1 MB
	}

	if c.Server.TLS.ACME.CacheDir == "" {
		c.Server.TLS.ACME.CacheDir = "/var/lib/clientdesk/certs"
	}
	if c.Server.TLS.ACME.HTTPAddr == "" {
		c.Server.TLS.ACME.HTTPAddr = ":80"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverBolt
	}
	if c.Database.Path == "" {
		if c.Database.Driver == DriverSQLite {
			c.Database.Path = "/var/lib/clientdesk/clientdesk.sqlite"
		} else {
			c.Database.Path = "/var/lib/clientdesk/clientdesk.db"
		}
	}

	if c.Mailer.Provider == "" {
		c.Mailer.Provider = ProviderLog
	}
	if c.Mailer.SMTP.Port == 0 {
		c.Mailer.SMTP.Port = 587
	}
	if c.Mailer.SMTP.TLSMode == "" {
		c.Mailer.SMTP.TLSMode = "starttls"
	}
	if c.Mailer.SMTP.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Mailer.SMTP.Hostname = hostname
	}
	if c.Mailer.SMTP.Timeout == 0 {
		c.Mailer.SMTP.Timeout = 30 * time.Second
	}
	if c.Mailer.SMTP.DKIM.Selector == "" {
		c.Mailer.SMTP.DKIM.Selector = "clientdesk"
	}
	if c.Mailer.SES.Region == "" {
		c.Mailer.SES.Region = "us-east-1"
	}
	if c.Mailer.Sandbox.ErrorProbability == 0 {
		c.Mailer.Sandbox.ErrorProbability = 0.1
	}

	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = "https://api.openai.com/v1"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = 60 * time.Second
	}
	if c.Generation.MaxRetries == 0 {
		c.Generation.MaxRetries = 3
	}
	if c.Generation.CacheTTL == 0 {
		c.Generation.CacheTTL = 30 * time.Minute
	}

	if c.Dispatch.Delay == 0 {
		c.Dispatch.Delay = time.Second
	}
	if c.Dispatch.RunHistory == 0 {
		c.Dispatch.RunHistory = 20
	}

	if c.RateLimit.FlushInterval == 0 {
		c.RateLimit.FlushInterval = 10 * time.Second
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "production"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("invalid database.driver: %s (must be bolt or sqlite)", c.Database.Driver)
	}

	if err := c.validateMailer(); err != nil {
		return err
	}

	if c.Generation.Enabled && c.Generation.APIKey == "" {
		return fmt.Errorf("generation.api_key is required when generation is enabled")
	}

	if c.Dispatch.Delay < 0 {
		return fmt.Errorf("dispatch.delay must not be negative")
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// validateTLS validates HTTPS settings
func (c *Config) validateTLS() error {
	t := c.Server.TLS
	if !t.Enabled {
		return nil
	}

	if t.ACME.Enabled {
		if len(t.ACME.Domains) == 0 {
			return fmt.Errorf("server.tls.acme.domains is required when ACME is enabled")
		}
		if t.ACME.Email == "" {
			return fmt.Errorf("server.tls.acme.email is required when ACME is enabled")
		}
		return nil
	}

	if t.CertFile == "" || t.KeyFile == "" {
		return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	return nil
}

// validateMailer validates provider settings
func (c *Config) validateMailer() error {
	m := c.Mailer

	if m.SenderEmail == "" {
		return fmt.Errorf("mailer.sender_email is required")
	}
	if _, err := mail.ParseAddress(m.SenderEmail); err != nil {
		return fmt.Errorf("invalid mailer.sender_email: %s", m.SenderEmail)
	}

	switch m.Provider {
	case ProviderResend:
		if m.Resend.APIKey == "" {
			return fmt.Errorf("mailer.resend.api_key is required")
		}
	case ProviderMailgun:
		if m.Mailgun.Domain == "" || m.Mailgun.APIKey == "" {
			return fmt.Errorf("mailer.mailgun.domain and mailer.mailgun.api_key are required")
		}
	case ProviderSES:
		if m.SES.Region == "" {
			return fmt.Errorf("mailer.ses.region is required")
		}
	case ProviderSMTP:
		if m.SMTP.Host == "" {
			return fmt.Errorf("mailer.smtp.host is required")
		}
		switch m.SMTP.TLSMode {
		case "none", "starttls", "ssl":
		default:
			return fmt.Errorf("invalid mailer.smtp.tls_mode: %s (must be none, starttls, or ssl)", m.SMTP.TLSMode)
		}
		if m.SMTP.DKIM.Enabled {
			if m.SMTP.DKIM.Domain == "" {
				return fmt.Errorf("mailer.smtp.dkim.domain is required when DKIM is enabled")
			}
			if m.SMTP.DKIM.KeyFile == "" {
				return fmt.Errorf("mailer.smtp.dkim.key_file is required when DKIM is enabled")
			}
		}
	case ProviderSandbox:
		if m.Sandbox.ErrorProbability < 0 || m.Sandbox.ErrorProbability > 1 {
			return fmt.Errorf("mailer.sandbox.error_probability must be between 0 and 1")
		}
	case ProviderLog:
	default:
		return fmt.Errorf("invalid mailer.provider: %s", m.Provider)
	}

	return nil
}

// HasTLS returns true if HTTPS is configured
func (c *Config) HasTLS() bool {
	t := c.Server.TLS
	return t.Enabled && (t.ACME.Enabled || (t.CertFile != "" && t.KeyFile != ""))
}
