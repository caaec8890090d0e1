package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work against a local API server without any config file.
const (
	defaultBaseURL        = "http://localhost:3005"
	defaultTimeout        = "30s"
	defaultUploadTimeout  = "10m"
	defaultAuthWait       = "30s"
	defaultSignInURL      = "https://identitytoolkit.googleapis.com"
	defaultTokenURL       = "https://securetoken.googleapis.com"
	defaultPollInterval   = "30s"
	defaultParallel       = 4
	defaultSettleDelay    = "2s"
	defaultMaxFileSize    = "0"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultUserAEmail     = "usera@example.com"
	defaultUserBEmail     = "userb@example.com"
	defaultSkipDuplicates = true
)

// defaultExtensions are the image types the dashboard's drop zone accepts.
var defaultExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       defaultBaseURL,
			Timeout:       defaultTimeout,
			UploadTimeout: defaultUploadTimeout,
			AuthWait:      defaultAuthWait,
		},
		Auth: AuthConfig{
			SignInURL: defaultSignInURL,
			TokenURL:  defaultTokenURL,
		},
		Roles: RolesConfig{
			UserA: []string{defaultUserAEmail},
			UserB: []string{defaultUserBEmail},
		},
		Dashboard: DashboardConfig{
			PollInterval: defaultPollInterval,
		},
		Uploads: UploadsConfig{
			Parallel:       defaultParallel,
			Extensions:     append([]string(nil), defaultExtensions...),
			SkipDuplicates: defaultSkipDuplicates,
			SettleDelay:    defaultSettleDelay,
			MaxFileSize:    defaultMaxFileSize,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
