package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Port            int             `env:"PORT" envDefault:"8080"`
	StoreDriver     string          `env:"STORE_DRIVER" envDefault:"memory"`
	LockDriver      string          `env:"LOCK_DRIVER" envDefault:"memory"`
	RoundDriver     string          `env:"ROUND_DRIVER" envDefault:"memory"`
	MigrateOnStart  bool            `env:"MIGRATE_ON_START" envDefault:"false"`
	MigrationsPath  string          `env:"MIGRATIONS_PATH" envDefault:"./migrations"`
	JWTSecret       string          `env:"JWT_SECRET"`
	AdminUsername   string          `env:"ADMIN_USERNAME"`
	StartingBalance decimal.Decimal `env:"STARTING_BALANCE" envDefault:"0"`
	CrashTick       time.Duration   `env:"CRASH_TICK" envDefault:"100ms"`

	DB    DBConfig
	Redis RedisConfig
	NATS  NATSConfig
}

type DBConfig struct {
	Host     string `env:"BLUEPRINT_DB_HOST" envDefault:"localhost"`
	Port     string `env:"BLUEPRINT_DB_PORT" envDefault:"5432"`
	Database string `env:"BLUEPRINT_DB_DATABASE" envDefault:"casino"`
	Username string `env:"BLUEPRINT_DB_USERNAME" envDefault:"postgres"`
	Password string `env:"BLUEPRINT_DB_PASSWORD" envDefault:"postgres"`
	Schema   string `env:"BLUEPRINT_DB_SCHEMA" envDefault:"public"`
}

// DSN is the pgx connection string for the configured database.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Schema)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_URL" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type NATSConfig struct {
	URL     string `env:"NATS_URL"`
	Subject string `env:"NATS_SUBJECT" envDefault:"casino.events"`
}

// Load reads the process environment, after .env has been applied.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("STORE_DRIVER %q: want memory or postgres", c.StoreDriver)
	}
	for name, v := range map[string]string{"LOCK_DRIVER": c.LockDriver, "ROUND_DRIVER": c.RoundDriver} {
		if v != DriverMemory && v != DriverRedis {
			return fmt.Errorf("%s %q: want memory or redis", name, v)
		}
	}
	if c.StartingBalance.IsNegative() {
		return fmt.Errorf("STARTING_BALANCE must not be negative")
	}
	if c.CrashTick <= 0 {
		return fmt.Errorf("CRASH_TICK must be positive")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c Config) UsesRedis() bool {
	return c.LockDriver == DriverRedis || c.RoundDriver == DriverRedis
}
