package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers "config show": the values in effect after all override
// layers. The API key is masked.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	ew.printf("[api]\n")
	ew.printf("  base_url       = %q\n", r.API.BaseURL)

	if r.API.UserAgent != "" {
		ew.printf("  user_agent     = %q\n", r.API.UserAgent)
	}

	ew.printf("  timeout        = %q\n", r.API.Timeout)
	ew.printf("  upload_timeout = %q\n", r.API.UploadTimeout)
	ew.printf("  auth_wait      = %q\n\n", r.API.AuthWait)

	ew.printf("[auth]\n")
	ew.printf("  api_key     = %q\n", maskSecret(r.Auth.APIKey))
	ew.printf("  sign_in_url = %q\n", r.Auth.SignInURL)
	ew.printf("  token_url   = %q\n\n", r.Auth.TokenURL)

	ew.printf("[roles]\n")
	ew.printf("  user_a = [%s]\n", joinQuoted(r.Roles.UserA))
	ew.printf("  user_b = [%s]\n\n", joinQuoted(r.Roles.UserB))

	ew.printf("[dashboard]\n")
	ew.printf("  partner_uid   = %q\n", r.Dashboard.PartnerUID)
	ew.printf("  poll_interval = %q\n\n", r.Dashboard.PollInterval)

	ew.printf("[uploads]\n")
	ew.printf("  parallel        = %d\n", r.Uploads.Parallel)
	ew.printf("  extensions      = [%s]\n", joinQuoted(r.Uploads.Extensions))
	ew.printf("  skip_duplicates = %t\n", r.Uploads.SkipDuplicates)
	ew.printf("  settle_delay    = %q\n", r.Uploads.SettleDelay)
	ew.printf("  max_file_size   = %q\n\n", r.Uploads.MaxFileSize)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n\n", r.Logging.LogFormat)

	ew.printf("# session: %s\n", r.SessionPath)
	ew.printf("# ledger:  %s\n", r.LedgerPath)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// maskedSuffixLen is how many trailing characters of a secret stay visible.
const maskedSuffixLen = 4

func maskSecret(s string) string {
	if s == "" {
		return ""
	}

	if len(s) <= maskedSuffixLen {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-maskedSuffixLen) + s[len(s)-maskedSuffixLen:]
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
