// Package testutil provides shared environment helpers for the live E2E
// suite. It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowlistEnv names the comma-separated list of accounts the E2E suite may
// sign in as.
const AllowlistEnv = "DATASYNC_ALLOWED_TEST_ACCOUNTS"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireEnv returns the value of each named variable and crashes the
// process when any is unset.
func RequireEnv(names ...string) map[string]string {
	vals := make(map[string]string, len(names))

	var missing []string

	for _, n := range names {
		v := os.Getenv(n)
		if v == "" {
			missing = append(missing, n)
		}

		vals[n] = v
	}

	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "FATAL: required E2E variables not set: %s\n", strings.Join(missing, ", "))
		fmt.Fprintln(os.Stderr, "Set them in .env or as environment variables.")
		os.Exit(1)
	}

	return vals
}

// ValidateAllowlist crashes the process if the allowlist is not set or if
// any given account is missing from it.
func ValidateAllowlist(accounts ...string) {
	allowlist := os.Getenv(AllowlistEnv)
	if allowlist == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", AllowlistEnv)
		fmt.Fprintf(os.Stderr, "Example: %s=usera@example.com,userb@example.com\n", AllowlistEnv)
		os.Exit(1)
	}

	allowed := make(map[string]bool)
	for _, a := range strings.Split(allowlist, ",") {
		allowed[strings.ToLower(strings.TrimSpace(a))] = true
	}

	for _, acct := range accounts {
		if !allowed[strings.ToLower(acct)] {
			fmt.Fprintf(os.Stderr, "FATAL: %q is not in %s=%q\n", acct, AllowlistEnv, allowlist)
			os.Exit(1)
		}
	}
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
