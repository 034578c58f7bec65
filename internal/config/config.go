package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del cliente, la sesión y el backend de desarrollo.
type Config struct {
	GASURL        string        `env:"GAS_URL" envDefault:"http://localhost:8090/exec"`
	GASSheetID    string        `env:"GAS_SHEET_ID"`
	GASTimeout    time.Duration `env:"GAS_TIMEOUT" envDefault:"20s"`
	GASSource     string        `env:"GAS_SOURCE" envDefault:"web-app"`
	GASOrigin     string        `env:"GAS_ORIGIN" envDefault:"http://localhost"`
	GASTransports []string      `env:"GAS_TRANSPORTS" envSeparator:"," envDefault:"post,get,frame,jsonp"`

	RememberMeDuration time.Duration `env:"REMEMBER_ME_DURATION" envDefault:"720h"`
	SessionTimeout     time.Duration `env:"SESSION_TIMEOUT" envDefault:"1h"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"file"`
	StoragePath   string `env:"STORAGE_PATH" envDefault:".gas-auth/storage.json"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	DatabaseURL   string `env:"DATABASE_URL"`

	DevBackendPort string        `env:"DEV_BACKEND_PORT" envDefault:"8090"`
	DevJWTSecret   string        `env:"DEV_JWT_SECRET" envDefault:"dev-secret"`
	DevTokenTTL    time.Duration `env:"DEV_TOKEN_TTL" envDefault:"1h"`
	DevRejectPost  bool          `env:"DEV_REJECT_POST" envDefault:"false"`

	DevLoginMaxAttempts int           `env:"DEV_LOGIN_MAX_ATTEMPTS" envDefault:"10"`
	DevLoginWindow      time.Duration `env:"DEV_LOGIN_WINDOW" envDefault:"1m"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
