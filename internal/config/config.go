// Package config loads server configuration from YAML and environment.
package config

import (
	"strings"
	"time"
)

// Config is the root server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Audit    AuditConfig    `yaml:"audit"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Notify   NotifyConfig   `yaml:"notify"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds gRPC listener settings. TLS is enabled when both cert and key are set.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8443"`
	TLSCert         string        `yaml:"tls_cert"         env:"SERVER_TLS_CERT"`
	TLSKey          string        `yaml:"tls_key"          env:"SERVER_TLS_KEY"`
	Reflection      bool          `yaml:"reflection"       env:"SERVER_REFLECTION"       env-default:"false"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// TLSEnabled reports whether both certificate files are configured.
func (s ServerConfig) TLSEnabled() bool { return s.TLSCert != "" && s.TLSKey != "" }

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	DSN            string        `yaml:"dsn"             env:"DATABASE_DSN"             env-required:"true"`
	MaxConns       int32         `yaml:"max_conns"       env:"DATABASE_MAX_CONNS"       env-default:"25"`
	MinConns       int32         `yaml:"min_conns"       env:"DATABASE_MIN_CONNS"       env-default:"2"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout" env:"DATABASE_RESOLVE_TIMEOUT" env-default:"2s"`
}

// AuthConfig holds admin bearer token settings.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"   env:"AUTH_JWT_SECRET"   env-required:"true"`
	RootSubject string        `yaml:"root_subject" env:"AUTH_ROOT_SUBJECT" env-default:"root"`
	TokenTTL    time.Duration `yaml:"token_ttl"    env:"AUTH_TOKEN_TTL"    env-default:"1h"`
}

// AuditConfig holds audit retention and aggregation settings.
type AuditConfig struct {
	RetentionDays int           `yaml:"retention_days" env:"AUDIT_RETENTION_DAYS" env-default:"90"`
	RetentionAt   string        `yaml:"retention_at"   env:"AUDIT_RETENTION_AT"   env-default:"03:00"`
	StatsInterval time.Duration `yaml:"stats_interval" env:"AUDIT_STATS_INTERVAL" env-default:"1h"`
	StatsWindow   time.Duration `yaml:"stats_window"   env:"AUDIT_STATS_WINDOW"   env-default:"0s"`
	WriteTimeout  time.Duration `yaml:"write_timeout"  env:"AUDIT_WRITE_TIMEOUT"  env-default:"2s"`
	PreviewMax    int           `yaml:"preview_max"    env:"AUDIT_PREVIEW_MAX"    env-default:"500"`

	// RetentionHour and RetentionMinute are parsed from RetentionAt during validation.
	RetentionHour   int `yaml:"-" env:"-"`
	RetentionMinute int `yaml:"-" env:"-"`
}

// DispatchConfig holds worker pool and retry policy settings.
type DispatchConfig struct {
	Workers           int           `yaml:"workers"             env:"DISPATCH_WORKERS"             env-default:"4"`
	QueueSize         int           `yaml:"queue_size"          env:"DISPATCH_QUEUE_SIZE"          env-default:"1024"`
	BacklogSize       int           `yaml:"backlog_size"        env:"DISPATCH_BACKLOG_SIZE"        env-default:"4096"`
	PollInterval      time.Duration `yaml:"poll_interval"       env:"DISPATCH_POLL_INTERVAL"       env-default:"1s"`
	LeaseTTL          time.Duration `yaml:"lease_ttl"           env:"DISPATCH_LEASE_TTL"           env-default:"30s"`
	BatchSize         int           `yaml:"batch_size"          env:"DISPATCH_BATCH_SIZE"          env-default:"16"`
	BaseDelay         time.Duration `yaml:"base_delay"          env:"DISPATCH_BASE_DELAY"          env-default:"60s"`
	MaxRetries        int           `yaml:"max_retries"         env:"DISPATCH_MAX_RETRIES"         env-default:"3"`
	WebhookMaxRetries int           `yaml:"webhook_max_retries" env:"DISPATCH_WEBHOOK_MAX_RETRIES" env-default:"5"`
	EnqueueTimeout    time.Duration `yaml:"enqueue_timeout"     env:"DISPATCH_ENQUEUE_TIMEOUT"     env-default:"500ms"`
	TaskTimeout       time.Duration `yaml:"task_timeout"        env:"DISPATCH_TASK_TIMEOUT"        env-default:"20s"`
}

// WebhookConfig is one outbound notification target. Only configurable via YAML.
type WebhookConfig struct {
	URL        string            `yaml:"url"`
	Format     string            `yaml:"format"`      // generic | slack | pagerduty
	RoutingKey string            `yaml:"routing_key"` // pagerduty integration key
	Events     []string          `yaml:"events"`      // empty means every event
	Headers    map[string]string `yaml:"headers"`
}

// NotifyConfig holds notification sinks.
type NotifyConfig struct {
	Webhooks       []WebhookConfig `yaml:"webhooks"`
	ThrottleWindow time.Duration   `yaml:"throttle_window" env:"NOTIFY_THROTTLE_WINDOW" env-default:"15m"`
	ThrottleMax    int             `yaml:"throttle_max"    env:"NOTIFY_THROTTLE_MAX"    env-default:"5"`
	KafkaBrokers   string          `yaml:"kafka_brokers"   env:"NOTIFY_KAFKA_BROKERS"`
	KafkaTopic     string          `yaml:"kafka_topic"     env:"NOTIFY_KAFKA_TOPIC"     env-default:"sendergate.decisions"`
}

// Brokers splits the comma-separated broker list.
func (n NotifyConfig) Brokers() []string {
	var out []string
	for _, b := range strings.Split(n.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// RedisConfig enables the shared job lease and stats cache when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB" env-default:"0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
