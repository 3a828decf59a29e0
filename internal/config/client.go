package config

import (
	"os"
	"path/filepath"
	"time"
)

// ClientConfig configures the app binary.
//
//   BAAS_URL            – provider base URL (required)
//   BAAS_ANON_KEY       – public apikey sent on every request
//   SESSION_FILE        – encrypted session file; empty keeps the session in memory
//   SESSION_KEY         – 32-byte key for SESSION_FILE (base64, hex or raw)
//   ROLE_LOOKUP_TIMEOUT – bound on each profile lookup (default 5s)
//   REFRESH_TIMEOUT     – bound on each token refresh (default 10s)
//   HTTP_TIMEOUT        – per-request HTTP timeout (default 10s)
//   AUTO_REFRESH        – renew tokens before expiry (default true)
//   AUTO_REFRESH_MARGIN – how long before expiry to renew (default 1m)
//   LOG_LEVEL           – zap level (default warn, the shell owns stdout)
type ClientConfig struct {
	BaseURL           string
	AnonKey           string
	SessionFile       string
	SessionKey        string
	RoleLookupTimeout time.Duration
	RefreshTimeout    time.Duration
	HTTPTimeout       time.Duration
	AutoRefresh       bool
	AutoRefreshMargin time.Duration
	LogLevel          string
}

// LoadClient reads the app configuration.  BAAS_URL is required.
func LoadClient() ClientConfig {
	return ClientConfig{
		BaseURL:           must("BAAS_URL"),
		AnonKey:           os.Getenv("BAAS_ANON_KEY"),
		SessionFile:       expandHome(os.Getenv("SESSION_FILE")),
		SessionKey:        os.Getenv("SESSION_KEY"),
		RoleLookupTimeout: envDur("ROLE_LOOKUP_TIMEOUT", 5*time.Second),
		RefreshTimeout:    envDur("REFRESH_TIMEOUT", 10*time.Second),
		HTTPTimeout:       envDur("HTTP_TIMEOUT", 10*time.Second),
		AutoRefresh:       envBool("AUTO_REFRESH", true),
		AutoRefreshMargin: envDur("AUTO_REFRESH_MARGIN", time.Minute),
		LogLevel:          envStr("LOG_LEVEL", "warn"),
	}
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
