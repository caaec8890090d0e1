package config

import (
	"log/slog"
	"os"
)

// Environment variable names for overrides.
const (
	EnvConfig     = "DATASYNC_CONFIG"
	EnvAPIURL     = "DATASYNC_API_URL"
	EnvAPIKey     = "DATASYNC_API_KEY"
	EnvPartnerUID = "DATASYNC_PARTNER_UID"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DATASYNC_CONFIG: override config file path
	BaseURL    string // DATASYNC_API_URL: API server base URL
	APIKey     string // DATASYNC_API_KEY: identity provider API key
	PartnerUID string // DATASYNC_PARTNER_UID: userA account watched by userB
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvAPIURL),
		APIKey:     os.Getenv(EnvAPIKey),
		PartnerUID: os.Getenv(EnvPartnerUID),
	}

	logger.Debug("read environment overrides",
		slog.String("config_path", env.ConfigPath),
		slog.String("api_url", env.BaseURL),
		slog.Bool("api_key_set", env.APIKey != ""),
		slog.String("partner_uid", env.PartnerUID),
	)

	return env
}
