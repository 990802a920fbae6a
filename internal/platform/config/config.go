package config

import (
	"errors"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nasermirzaei89/env"
)

type HTTPConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string
	HTTP        HTTPConfig
	// CORSOrigins is empty when CORS_ALLOWED_ORIGINS is unset.
	CORSOrigins []string
	// TrustProxy is TRUST_PROXY: client IPs come from forwarding headers.
	TrustProxy bool
}

// IsProduction reports whether APP_ENV=production.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads the settings every service shares. A .env file in the working
// directory is applied first; variables already present in the environment win.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		ServiceName: strings.TrimSpace(env.GetString("SERVICE_NAME", "")),
		LogLevel:    strings.TrimSpace(env.GetString("LOG_LEVEL", "")),
		Env:         strings.TrimSpace(env.GetString("APP_ENV", "development")),
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(env.GetString("HTTP_ADDR", "")),
		},
		TrustProxy: env.GetBool("TRUST_PROXY", false),
	}
	for _, o := range env.GetStringSlice("CORS_ALLOWED_ORIGINS", nil) {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}
