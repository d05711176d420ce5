package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string            `mapstructure:"environment"`
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Audit       AuditConfig       `mapstructure:"audit"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Email       EmailConfig       `mapstructure:"email"`
	Events      EventsConfig      `mapstructure:"events"`
	Worker      WorkerConfig      `mapstructure:"worker"`

	// Secrets never live in the YAML file.
	Secrets Secrets `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequestTimeout bounds the handler chain of every request.
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
	// Lock is "local" or "redis".
	Lock string `mapstructure:"lock"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type PersistenceConfig struct {
	// Timeout bounds every store call and lock acquisition.
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuditConfig struct {
	// Mode is "async" or "sync".
	Mode           string        `mapstructure:"mode"`
	Shards         int           `mapstructure:"shards"`
	QueueSize      int           `mapstructure:"queue_size"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type JWTConfig struct {
	Issuer        string        `mapstructure:"issuer"`
	Expiry        time.Duration `mapstructure:"expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// Timeout bounds each notification, SMTP dial and send included.
	Timeout time.Duration `mapstructure:"timeout"`
}

// EventsConfig turns on appointment events over Redis pub/sub.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

type WorkerConfig struct {
	ErasureInterval time.Duration `mapstructure:"erasure_interval"`
}

// Secrets are bound straight from the environment.
type Secrets struct {
	EncryptionKey string `envconfig:"PRIVACY_ENCRYPTION_KEY" required:"true"`
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	// The bootstrap admin is created on start when both are set.
	AdminEmail    string `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.lock", "local")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.lock_ttl", 10*time.Second)
	v.SetDefault("persistence.timeout", 5*time.Second)
	v.SetDefault("audit.mode", "async")
	v.SetDefault("audit.shards", 8)
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.enqueue_timeout", 100*time.Millisecond)
	v.SetDefault("audit.write_timeout", 5*time.Second)
	v.SetDefault("jwt.issuer", "care-scheduler")
	v.SetDefault("jwt.expiry", 24*time.Hour)
	v.SetDefault("jwt.refresh_expiry", 7*24*time.Hour)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("email.timeout", 10*time.Second)
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.channel", "care-scheduler.appointments")
	v.SetDefault("worker.erasure_interval", time.Minute)
}

// Load reads config.yml from the usual locations, overlays environment
// variables (keys with "." replaced by "_") and binds secrets.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	switch c.Storage.Lock {
	case "local", "redis":
	default:
		return fmt.Errorf("storage.lock must be local or redis, got %q", c.Storage.Lock)
	}
	switch c.Audit.Mode {
	case "async", "sync":
	default:
		return fmt.Errorf("audit.mode must be async or sync, got %q", c.Audit.Mode)
	}
	if c.Persistence.Timeout <= 0 {
		return errors.New("persistence.timeout must be positive")
	}
	return nil
}
