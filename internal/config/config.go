package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DevSecret is only accepted as a signing secret when APP_ENV=dev.
const DevSecret = "devsecret"

var ErrInsecureSecret = errors.New("JWT_SECRET must be set to a non-default value outside dev")

type Config struct {
	// no default: the dev secret fallback needs APP_ENV=dev spelled out
	Env              string `env:"APP_ENV"`
	Port             int    `env:"PORT" env-default:"4000"`
	WorkerHealthPort int    `env:"WORKER_HEALTH_PORT" env-default:"4001"`

	// postgres | memory
	StoreDriver string `env:"STORE_DRIVER" env-default:"postgres"`
	DBURL       string `env:"DATABASE_URL"`
	DB          DBConfig

	JWTSecret   string `env:"JWT_SECRET"`
	JWTTTLHours int    `env:"JWT_TTL_HOURS" env-default:"168"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	CORSOrigins  []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	OTelEndpoint string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	AuthRateLimit         int `env:"AUTH_RATE_LIMIT" env-default:"20"`
	AuthRateWindowSeconds int `env:"AUTH_RATE_WINDOW_SECONDS" env-default:"60"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" env-default:"127.0.0.1"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER" env-default:"ninja"`
	Password string `env:"DB_PASSWORD" env-default:"ninja"`
	Name     string `env:"DB_NAME" env-default:"ninjago"`
	SSLMode  string `env:"DB_SSLMODE" env-default:"disable"`
}

// Load reads the environment (and a .env file when present) and validates the result.
func Load() (Config, error) {
	// a missing .env is fine, the real environment wins anyway
	_ = godotenv.Load()

	var cfg Config

	err := cleanenv.ReadEnv(&cfg)

	if err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	if cfg.DBURL == "" {
		cfg.DBURL = cfg.DB.URL()
	}

	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = DevSecret
	}

	err = cfg.Validate()

	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

type dbOnly struct {
	DBURL string `env:"DATABASE_URL"`
	DB    DBConfig
}

// LoadDatabaseURL reads only the database settings, for tools like the
// migrator that must not require the API's secrets.
func LoadDatabaseURL() (string, error) {
	_ = godotenv.Load()

	var c dbOnly

	err := cleanenv.ReadEnv(&c)

	if err != nil {
		return "", fmt.Errorf("read env: %w", err)
	}

	if c.DBURL != "" {
		return c.DBURL, nil
	}

	return c.DB.URL(), nil
}

func (c Config) Validate() error {
	if !c.IsDev() && (strings.TrimSpace(c.JWTSecret) == "" || c.JWTSecret == DevSecret) {
		return ErrInsecureSecret
	}

	if c.JWTTTLHours <= 0 {
		return fmt.Errorf("JWT_TTL_HOURS must be positive, got %d", c.JWTTTLHours)
	}

	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	return nil
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

func (c Config) AuthRateWindow() time.Duration {
	return time.Duration(c.AuthRateWindowSeconds) * time.Second
}

func (d DBConfig) URL() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   d.Name,
	}

	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()

	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
