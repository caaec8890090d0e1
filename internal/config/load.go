package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("loaded config file",
		slog.String("path", path),
		slog.Int("keys", len(md.Keys())),
	)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("no config file, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.BaseURL != "" {
		cfg.API.BaseURL = env.BaseURL
	}

	if env.APIKey != "" {
		cfg.Auth.APIKey = env.APIKey
	}

	if env.PartnerUID != "" {
		cfg.Dashboard.PartnerUID = env.PartnerUID
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.BaseURL != nil {
		cfg.API.BaseURL = *cli.BaseURL
	}

	if cli.PartnerUID != nil {
		cfg.Dashboard.PartnerUID = *cli.PartnerUID
	}

	// 5. Validate the merged result; overrides can be invalid too.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved, err := buildResolved(cfg, cfgPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("resolved config",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("base_url", resolved.API.BaseURL),
		slog.String("session_path", resolved.SessionPath),
		slog.String("ledger_path", resolved.LedgerPath),
	)

	return resolved, nil
}

// buildResolved parses the string-typed settings of a validated Config.
func buildResolved(cfg *Config, cfgPath string) (*Resolved, error) {
	r := &Resolved{
		Config:      *cfg,
		ConfigPath:  cfgPath,
		SessionPath: SessionPath(),
		LedgerPath:  LedgerPath(),
	}

	durations := []struct {
		key string
		in  string
		out *time.Duration
	}{
		{"api.timeout", cfg.API.Timeout, &r.Timeout},
		{"api.upload_timeout", cfg.API.UploadTimeout, &r.UploadTimeout},
		{"api.auth_wait", cfg.API.AuthWait, &r.AuthWait},
		{"dashboard.poll_interval", cfg.Dashboard.PollInterval, &r.PollInterval},
		{"uploads.settle_delay", cfg.Uploads.SettleDelay, &r.SettleDelay},
	}

	for _, d := range durations {
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}

		*d.out = v
	}

	size, err := parseSize(cfg.Uploads.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("uploads.max_file_size: %w", err)
	}

	r.MaxFileSize = size

	return r, nil
}
