package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "USERMGR"

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"

	RecoveryStoreMemory = "memory"
	RecoveryStoreRedis  = "redis"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	SQLite    SQLiteSettings    `mapstructure:"sqlite"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Recovery  RecoverySettings  `mapstructure:"recovery"`
	SMTP      SMTPSettings      `mapstructure:"smtp"`
	Password  PasswordSettings  `mapstructure:"password"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name        string   `mapstructure:"name"`
	Env         string   `mapstructure:"env"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StorageSettings selects the SQL engine backing the user directory.
type StorageSettings struct {
	Driver         string        `mapstructure:"driver"`
	Serialize      bool          `mapstructure:"serialize"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type PostgresSettings struct {
	URL               string        `mapstructure:"url"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// SQLiteSettings configures the embedded engine used for local runs and tests.
type SQLiteSettings struct {
	DSN string `mapstructure:"dsn"`
}

// RedisSettings configures the optional Redis connection used for shared recovery codes and rate limits.
type RedisSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures the event producer. No brokers means events are only logged.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	SecretKey     string `mapstructure:"secret_key"`
	Algorithm     string `mapstructure:"algorithm"`
	ExpireMinutes int    `mapstructure:"expire_minutes"`
}

// RecoverySettings configures password recovery codes.
type RecoverySettings struct {
	CodeExpireMinutes int           `mapstructure:"code_expire_minutes"`
	Store             string        `mapstructure:"store"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
	Retention         time.Duration `mapstructure:"retention"`
	PurgeInterval     time.Duration `mapstructure:"purge_interval"`
	AllowCustomCode   bool          `mapstructure:"allow_custom_code"`
	// ExposeCode returns issued codes in the API response. Local development only.
	ExposeCode        bool          `mapstructure:"expose_code"`
}

// SMTPSettings holds the sender credentials for recovery emails.
type SMTPSettings struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	SSL         bool          `mapstructure:"ssl"`
	SenderEmail string        `mapstructure:"sender_email"`
	Password    string        `mapstructure:"password"`
	Subject     string        `mapstructure:"subject"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// PasswordSettings configures the password policy applied on register, update and reset.
type PasswordSettings struct {
	MinLength int `mapstructure:"min_length"`
	MinScore  int `mapstructure:"min_score"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	RecoveryMaxAttempts int           `mapstructure:"recovery_max_attempts"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	Insecure       bool    `mapstructure:"insecure"`
}

// IsProduction reports whether the service runs with production settings.
func (c *AppConfig) IsProduction() bool {
	return c != nil && c.App.Env == "production"
}

// IsDevelopment reports whether the service runs with development settings.
func (c *AppConfig) IsDevelopment() bool {
	return c != nil && c.App.Env == "development"
}

// aliases keeps the variable names used by earlier deployments working.
var aliases = map[string][]string{
	"recovery.code_expire_minutes": {"CODE_EXPIRE_MINUTES"},
	"smtp.sender_email":            {"SENDER_EMAIL"},
	"smtp.password":                {"PASSWORD_EMAIL"},
	"postgres.url":                 {"PRODUCTION_DATABASE_URL"},
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_origins",
		"storage.driver",
		"storage.serialize",
		"storage.auto_migrate",
		"storage.connect_timeout",
		"postgres.url",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"sqlite.dsn",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret_key",
		"jwt.algorithm",
		"jwt.expire_minutes",
		"recovery.code_expire_minutes",
		"recovery.store",
		"recovery.key_prefix",
		"recovery.retention",
		"recovery.purge_interval",
		"recovery.allow_custom_code",
		"recovery.expose_code",
		"smtp.host",
		"smtp.port",
		"smtp.ssl",
		"smtp.sender_email",
		"smtp.password",
		"smtp.subject",
		"smtp.timeout",
		"password.min_length",
		"password.min_score",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.recovery_max_attempts",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"telemetry.insecure",
	}); err != nil {
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

// Validate rejects configurations the service cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.JWT.SecretKey) == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	switch strings.ToUpper(c.JWT.Algorithm) {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("jwt.algorithm %q is not a supported HMAC algorithm", c.JWT.Algorithm))
	}
	if c.JWT.ExpireMinutes <= 0 {
		errs = append(errs, errors.New("jwt.expire_minutes must be positive"))
	}
	if c.Recovery.CodeExpireMinutes <= 0 {
		errs = append(errs, errors.New("recovery.code_expire_minutes must be positive"))
	}

	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}

	switch c.Recovery.Store {
	case RecoveryStoreMemory:
	case RecoveryStoreRedis:
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("recovery.store=redis requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("recovery.store %q is not supported", c.Recovery.Store))
	}

	// Either switch lets a caller redeem a code without reading the mailbox.
	if c.IsProduction() {
		if c.Recovery.AllowCustomCode {
			errs = append(errs, errors.New("recovery.allow_custom_code must be off in production"))
		}
		if c.Recovery.ExposeCode {
			errs = append(errs, errors.New("recovery.expose_code must be off in production"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "user-manager")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8000)
	v.SetDefault("app.cors_origins", []string{"*"})

	v.SetDefault("storage.driver", StorageDriverSQLite)
	v.SetDefault("storage.serialize", true)
	v.SetDefault("storage.auto_migrate", true)
	v.SetDefault("storage.connect_timeout", "30s")

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "usermanager")
	v.SetDefault("postgres.password", "usermanager")
	v.SetDefault("postgres.database", "usermanager")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("sqlite.dsn", "file:usermanager?mode=memory&cache=shared")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "")

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.expire_minutes", 30)

	v.SetDefault("recovery.code_expire_minutes", 10)
	v.SetDefault("recovery.store", RecoveryStoreMemory)
	v.SetDefault("recovery.key_prefix", "usermanager:recovery")
	v.SetDefault("recovery.retention", "1h")
	v.SetDefault("recovery.purge_interval", "5m")
	v.SetDefault("recovery.allow_custom_code", false)
	v.SetDefault("recovery.expose_code", false)

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.ssl", true)
	v.SetDefault("smtp.sender_email", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.subject", "Restablecer contraseña")
	v.SetDefault("smtp.timeout", "15s")

	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.min_score", 0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.recovery_max_attempts", 5)

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "user-manager")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.insecure", true)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := append([]string{envPrefix + "_" + envKey, envKey}, aliases[key]...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
