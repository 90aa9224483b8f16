package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

const minKeyLength = 4

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env                 string        `yaml:"env"`
	Domain              string        `yaml:"domain"`
	KeyLength           int           `yaml:"key_length"`
	KeyMaxRetries       int           `yaml:"key_max_retries"`
	DefaultLifespanDays int           `yaml:"default_lifespan_days"`
	FlushPeriod         time.Duration `yaml:"flush_period"`
	Storage             string        `yaml:"storage"`
	MigrationsPath      string        `yaml:"migrations_path"`
	HTTPServer          `yaml:"http_server"`
	Postgres            `yaml:"postgres"`
	Redis               `yaml:"redis"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
	ConnectAttempts: 5,
	RetryInterval:   2 * time.Second,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

// Redis configures the optional link cache in front of the storage.
type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

var defaultRedis = Redis{
	Addr: "localhost:6379",
	TTL:  time.Hour,
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

// Validate reports the first setting the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Env != EnvDev && c.Env != EnvStage && c.Env != EnvProd:
		return fmt.Errorf("%w: unknown env %q", ErrInvalidConfig, c.Env)
	case c.Domain == "":
		return fmt.Errorf("%w: domain is required", ErrInvalidConfig)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("%w: key_length must be at least %d", ErrInvalidConfig, minKeyLength)
	case c.KeyMaxRetries < 1:
		return fmt.Errorf("%w: key_max_retries must be positive", ErrInvalidConfig)
	case c.DefaultLifespanDays < 1:
		return fmt.Errorf("%w: default_lifespan_days must be positive", ErrInvalidConfig)
	case c.FlushPeriod <= 0:
		return fmt.Errorf("%w: flush_period must be positive", ErrInvalidConfig)
	case c.Storage != StorageMemory && c.Storage != StoragePostgres:
		return fmt.Errorf("%w: unknown storage %q", ErrInvalidConfig, c.Storage)
	}

	return nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.Domain = "http://localhost:8080/"
	cfg.KeyLength = 8
	cfg.KeyMaxRetries = 10
	cfg.DefaultLifespanDays = 365
	cfg.FlushPeriod = 30 * time.Second
	cfg.Storage = StorageMemory
	cfg.MigrationsPath = "file://migrations"
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
}
