package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minParallel       = 1
	maxParallel       = 16
	minTimeout        = 1 * time.Second
	minPollInterval   = 1 * time.Second
	maxSettleDelay    = 5 * time.Minute
	minUploadTimeout  = 10 * time.Second
	maxExtensionChars = 10
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateRoles(&cfg.Roles)...)
	errs = append(errs, validateDashboard(&cfg.Dashboard)...)
	errs = append(errs, validateUploads(&cfg.Uploads)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	if err := validateHTTPURL(a.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.base_url: %w", err))
	}

	errs = append(errs, validateDurationMin("api.timeout", a.Timeout, minTimeout)...)
	errs = append(errs, validateDurationMin("api.upload_timeout", a.UploadTimeout, minUploadTimeout)...)
	errs = append(errs, validateDurationMin("api.auth_wait", a.AuthWait, 0)...)

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if err := validateHTTPURL(a.SignInURL); err != nil {
		errs = append(errs, fmt.Errorf("auth.sign_in_url: %w", err))
	}

	if err := validateHTTPURL(a.TokenURL); err != nil {
		errs = append(errs, fmt.Errorf("auth.token_url: %w", err))
	}

	return errs
}

func validateRoles(r *RolesConfig) []error {
	var errs []error

	for _, list := range []struct {
		key    string
		emails []string
	}{
		{"roles.user_a", r.UserA},
		{"roles.user_b", r.UserB},
	} {
		for _, email := range list.emails {
			if !strings.Contains(email, "@") {
				errs = append(errs, fmt.Errorf("%s: %q is not an email address", list.key, email))
			}
		}
	}

	return errs
}

func validateDashboard(d *DashboardConfig) []error {
	var errs []error

	if strings.ContainsAny(d.PartnerUID, "/?# ") {
		errs = append(errs, fmt.Errorf("dashboard.partner_uid: %q must not contain '/', '?', '#' or spaces", d.PartnerUID))
	}

	errs = append(errs, validateDurationMin("dashboard.poll_interval", d.PollInterval, minPollInterval)...)

	return errs
}

func validateUploads(u *UploadsConfig) []error {
	var errs []error

	if u.Parallel < minParallel || u.Parallel > maxParallel {
		errs = append(errs, fmt.Errorf("uploads.parallel: must be between %d and %d, got %d",
			minParallel, maxParallel, u.Parallel))
	}

	if len(u.Extensions) == 0 {
		errs = append(errs, errors.New("uploads.extensions: must list at least one extension"))
	}

	for _, ext := range u.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 || len(ext) > maxExtensionChars {
			errs = append(errs, fmt.Errorf("uploads.extensions: %q must look like \".png\"", ext))
		}
	}

	d, err := time.ParseDuration(u.SettleDelay)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("uploads.settle_delay: %w", err))
	case d < 0 || d > maxSettleDelay:
		errs = append(errs, fmt.Errorf("uploads.settle_delay: must be between 0s and %s, got %s", maxSettleDelay, u.SettleDelay))
	}

	if _, err := parseSize(u.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("uploads.max_file_size: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateDurationMin(key, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", key, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", key, minimum, value)}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}

	return nil
}
