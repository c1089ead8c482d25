package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,notEmpty"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET,notEmpty"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"240h"`

	BcryptCost                     int  `env:"BCRYPT_COST" envDefault:"10"`
	PasswordMinLength              int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	RevokeSessionsOnPasswordChange bool `env:"REVOKE_SESSIONS_ON_PASSWORD_CHANGE" envDefault:"true"`
	CookieSecure                   bool `env:"COOKIE_SECURE" envDefault:"true"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	Media MediaConfig
}

type MediaConfig struct {
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	PublicBaseURL   string `env:"MEDIA_PUBLIC_BASE_URL"`
	UploadTempDir   string `env:"UPLOAD_TEMP_DIR" envDefault:"./public/temp"`
}

// Load applies .env.local and .env, then parses the process environment.
// Both files are read when present. A variable keeps the first value it got,
// so the environment beats .env.local, which beats .env.
func Load() (*Config, error) {
	if err := loadDotenv(".env.local", ".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap parses configuration from an explicit variable set instead of the
// process environment.
func FromMap(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.AccessTokenExpiry <= 0 || c.RefreshTokenExpiry <= 0 {
		return errors.New("token expiries must be positive")
	}
	if c.PasswordMinLength < 1 {
		return errors.New("PASSWORD_MIN_LENGTH must be positive")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is not set")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// loadDotenv loads each file in order, skipping the ones that do not exist.
// godotenv never overrides a variable that is already set.
func loadDotenv(files ...string) error {
	found := 0
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil:
			found++
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if found == 0 {
		slog.Info("no dotenv files found, using environment variables")
	}
	return nil
}
