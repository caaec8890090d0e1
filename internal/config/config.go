// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for datasync. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Every setting lives in a named section.
type Config struct {
	API       APIConfig       `toml:"api"`
	Auth      AuthConfig      `toml:"auth"`
	Roles     RolesConfig     `toml:"roles"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Uploads   UploadsConfig   `toml:"uploads"`
	Logging   LoggingConfig   `toml:"logging"`
}

// APIConfig points the client at the dashboard API server.
type APIConfig struct {
	BaseURL       string `toml:"base_url"`
	UserAgent     string `toml:"user_agent"`
	Timeout       string `toml:"timeout"`
	UploadTimeout string `toml:"upload_timeout"`
	AuthWait      string `toml:"auth_wait"`
}

// AuthConfig configures the identity provider's REST endpoints.
type AuthConfig struct {
	APIKey    string `toml:"api_key"`
	SignInURL string `toml:"sign_in_url"`
	TokenURL  string `toml:"token_url"`
}

// RolesConfig maps email addresses to dashboard roles.
type RolesConfig struct {
	UserA []string `toml:"user_a"`
	UserB []string `toml:"user_b"`
}

// DashboardConfig holds cross-role settings. PartnerUID is the userA account
// whose submissions a userB watches.
type DashboardConfig struct {
	PartnerUID   string `toml:"partner_uid"`
	PollInterval string `toml:"poll_interval"`
}

// UploadsConfig controls batch uploads and the watched drop folder.
type UploadsConfig struct {
	Parallel       int      `toml:"parallel"`
	Extensions     []string `toml:"extensions"`
	SkipDuplicates bool     `toml:"skip_duplicates"`
	SettleDelay    string   `toml:"settle_delay"`
	MaxFileSize    string   `toml:"max_file_size"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	BaseURL    *string // --api-url flag
	PartnerUID *string // --partner flag
}

// Resolved is the effective configuration after all override layers, with
// durations and sizes parsed and data paths filled in.
type Resolved struct {
	Config

	ConfigPath  string `json:"config_path"`
	SessionPath string `json:"session_path"`
	LedgerPath  string `json:"ledger_path"`

	Timeout       time.Duration `json:"-"`
	UploadTimeout time.Duration `json:"-"`
	AuthWait      time.Duration `json:"-"`
	PollInterval  time.Duration `json:"-"`
	SettleDelay   time.Duration `json:"-"`
	MaxFileSize   int64         `json:"-"`
}
