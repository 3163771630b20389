package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "AKIRA"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Secrets   SecretSettings    `mapstructure:"secrets"`
	Session   SessionSettings   `mapstructure:"session"`
	Challenge ChallengeSettings `mapstructure:"challenge"`
	Keys      KeySettings       `mapstructure:"keys"`
	Password  PasswordSettings  `mapstructure:"password"`
	Notifier  NotifierSettings  `mapstructure:"notifier"`
	Audit     AuditSettings     `mapstructure:"audit"`
}

type AppSettings struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Production reports whether the process runs with production safeguards.
func (s AppSettings) Production() bool {
	return strings.EqualFold(s.Env, "production")
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
	ConnectAttempts   int           `mapstructure:"connect_attempts"`
}

// RedisSettings configures the challenge and revocation store connection.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// KafkaSettings configures the notification producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// SecretSettings locates the vault, ledger and session keys. Inline hex wins over Directory.
type SecretSettings struct {
	MasterKey      string `mapstructure:"master_key"`
	SigningKey     string `mapstructure:"signing_key"`
	SessionKey     string `mapstructure:"session_key"`
	Directory      string `mapstructure:"directory"`
	AllowEphemeral bool   `mapstructure:"allow_ephemeral"`
}

type SessionSettings struct {
	TTL               time.Duration `mapstructure:"ttl"`
	Issuer            string        `mapstructure:"issuer"`
	RevocationEnabled bool          `mapstructure:"revocation_enabled"`
	RevocationPrefix  string        `mapstructure:"revocation_prefix"`
}

type ChallengeSettings struct {
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// KeySettings configures API key validity and the rotation entropy chain.
type KeySettings struct {
	Validity           time.Duration `mapstructure:"validity"`
	EntropyDevice      string        `mapstructure:"entropy_device"`
	EntropyTimeout     time.Duration `mapstructure:"entropy_timeout"`
	AllowLocalFallback bool          `mapstructure:"allow_local_fallback"`
}

type PasswordSettings struct {
	MinLength        int `mapstructure:"min_length"`
	MinStrengthScore int `mapstructure:"min_strength_score"`
}

type NotifierSettings struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuditSettings bounds the self-service audit log query.
type AuditSettings struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.log_level",
	"app.shutdown_timeout",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.schema",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.auto_migrate",
	"postgres.connect_attempts",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.pool_size",
	"kafka.enabled",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.async",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"secrets.master_key",
	"secrets.signing_key",
	"secrets.session_key",
	"secrets.directory",
	"secrets.allow_ephemeral",
	"session.ttl",
	"session.issuer",
	"session.revocation_enabled",
	"session.revocation_prefix",
	"challenge.ttl",
	"challenge.max_attempts",
	"challenge.key_prefix",
	"keys.validity",
	"keys.entropy_device",
	"keys.entropy_timeout",
	"keys.allow_local_fallback",
	"password.min_length",
	"password.min_strength_score",
	"notifier.timeout",
	"audit.default_limit",
	"audit.max_limit",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *AppConfig) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("config: app.port %d out of range", c.App.Port)
	}
	if c.Challenge.MaxAttempts <= 0 {
		return fmt.Errorf("config: challenge.max_attempts must be positive")
	}
	if c.Challenge.TTL <= 0 || c.Session.TTL <= 0 || c.Keys.Validity <= 0 {
		return fmt.Errorf("config: challenge.ttl, session.ttl and keys.validity must be positive")
	}
	if c.App.Production() && c.Secrets.AllowEphemeral {
		return fmt.Errorf("config: secrets.allow_ephemeral is not permitted in production")
	}
	if c.Audit.DefaultLimit <= 0 || c.Audit.MaxLimit < c.Audit.DefaultLimit {
		return fmt.Errorf("config: audit.default_limit must be positive and not above audit.max_limit")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers required when kafka is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "akira")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "akira")
	v.SetDefault("postgres.password", "akira_password")
	v.SetDefault("postgres.database", "akira")
	v.SetDefault("postgres.schema", "akira")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("postgres.connect_attempts", 5)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "akira")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "akira")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("secrets.directory", "./secrets")
	v.SetDefault("secrets.allow_ephemeral", false)

	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.issuer", "akira")
	v.SetDefault("session.revocation_enabled", true)
	v.SetDefault("session.revocation_prefix", "akira:revoked")

	v.SetDefault("challenge.ttl", "5m")
	v.SetDefault("challenge.max_attempts", 5)
	v.SetDefault("challenge.key_prefix", "akira:challenge")

	v.SetDefault("keys.validity", "720h")
	v.SetDefault("keys.entropy_device", "/dev/hwrng")
	v.SetDefault("keys.entropy_timeout", "2s")
	v.SetDefault("keys.allow_local_fallback", true)

	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.min_strength_score", 0)

	v.SetDefault("notifier.timeout", "5s")

	v.SetDefault("audit.default_limit", 50)
	v.SetDefault("audit.max_limit", 500)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
