package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"registrar/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"REGISTRAR_ADDR" envDefault:":8080"`
	Environment     string        `env:"REGISTRAR_ENV" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	Auth     AuthConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Audit    AuditConfig
	Lock     LockConfig
}

type AuthConfig struct {
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer        string        `env:"JWT_ISSUER" envDefault:"registrar"`
	Audience      string        `env:"JWT_AUDIENCE" envDefault:"registrar-api"`
	DevTokenTTL   time.Duration `env:"DEV_TOKEN_TTL" envDefault:"1h"`
}

// StorageConfig selects the backing stores: "memory" or "postgres".
type StorageConfig struct {
	Driver   string `env:"STORAGE_DRIVER" envDefault:"memory"`
	SeedFile string `env:"SEED_FILE"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	MigrateOnStart  bool          `env:"DB_MIGRATE_ON_START" envDefault:"false"`
	TxTimeout       time.Duration `env:"DB_TX_TIMEOUT" envDefault:"5s"`
}

// RedisConfig is optional; an empty URL keeps locking in process.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig is optional; with no brokers audit events are not streamed.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"registrar.audit"`
	Partitions int32    `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"3"`
	Replicas   int16    `env:"KAFKA_AUDIT_REPLICAS" envDefault:"1"`
}

type AuditConfig struct {
	BufferSize int `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`
}

type LockConfig struct {
	Timeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"5s"`
	TTL     time.Duration `env:"LOCK_TTL" envDefault:"10s"`
}

// LoadEnv loads the dotenv files that exist, in order, without overriding
// variables already set in the process environment.
func LoadEnv(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// FromEnv builds a validated Server config from the environment.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Kafka.Brokers = strings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be memory or postgres, got %q", c.Storage.Driver))
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
	}
	if c.Audit.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("AUDIT_BUFFER_SIZE must be non-negative, got %d", c.Audit.BufferSize))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

func (c Server) IsProduction() bool {
	return c.Environment == "production"
}
