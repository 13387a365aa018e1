// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 鍵ラッパーの種類
const (
	KeyWrapperKMS   = "kms"
	KeyWrapperLocal = "local"
)

// データベースドライバーの種類
const (
	DatabaseDriverMySQL  = "mysql"
	DatabaseDriverSQLite = "sqlite"
)

// ErrInvalidConfig は設定値が不正な場合のエラー。
var ErrInvalidConfig = errors.New("invalid configuration")

// Config はアプリケーション設定を表す。
type Config struct {
	Port           string `env:"PORT" envDefault:"8080"`
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"mysql"`
	DatabaseURL    string `env:"DATABASE_URL"`

	KeyAlias      string `env:"KEY_ALIAS" envDefault:"vault"`
	KeyWrapper    string `env:"KEY_WRAPPER" envDefault:"kms"`
	KMSKeyName    string `env:"KMS_KEY_NAME"`
	MasterKeyPath string `env:"MASTER_KEY_PATH"`

	// 鍵ファシリティ障害時に旧形式で保存するか。既定は無効。
	AllowDegradedEncoding bool `env:"ALLOW_DEGRADED_ENCODING" envDefault:"false"`

	LogLevel           string `env:"LOG_LEVEL" envDefault:"INFO"`
	GoogleCloudProject string `env:"GOOGLE_CLOUD_PROJECT"`

	OtelEnabled      bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OtelEndpoint     string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OtelServiceName  string  `env:"OTEL_SERVICE_NAME" envDefault:"vault-secret-store"`
	OtelSamplingRate float64 `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
}

// Load は .env ファイルと環境変数から設定を読み込む。
func Load() (*Config, error) {
	// .env が無いのは正常
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// Validate は設定値の組み合わせを検証する。
func (c *Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DatabaseDriverMySQL, DatabaseDriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("%w: DATABASE_DRIVER must be %q or %q, got %q",
			ErrInvalidConfig, DatabaseDriverMySQL, DatabaseDriverSQLite, c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: DATABASE_URL is required", ErrInvalidConfig))
	}

	if c.KeyAlias == "" {
		errs = append(errs, fmt.Errorf("%w: KEY_ALIAS must not be empty", ErrInvalidConfig))
	}

	switch c.KeyWrapper {
	case KeyWrapperKMS:
		if c.KMSKeyName == "" {
			errs = append(errs, fmt.Errorf("%w: KMS_KEY_NAME is required when KEY_WRAPPER=kms", ErrInvalidConfig))
		}
	case KeyWrapperLocal:
		if c.MasterKeyPath == "" {
			errs = append(errs, fmt.Errorf("%w: MASTER_KEY_PATH is required when KEY_WRAPPER=local", ErrInvalidConfig))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: KEY_WRAPPER must be %q or %q, got %q",
			ErrInvalidConfig, KeyWrapperKMS, KeyWrapperLocal, c.KeyWrapper))
	}

	if c.OtelSamplingRate < 0 || c.OtelSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("%w: OTEL_SAMPLING_RATE must be within [0, 1]", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// SlogLevel は LOG_LEVEL を slog.Level に変換する。不明な値は INFO とする。
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
