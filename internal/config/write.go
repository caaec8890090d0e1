package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is the permission mode for config files. The file
// may hold the provider API key, so it is owner-only.
const configFilePermissions = 0o600

// configDirPermissions is the permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteTemplate when the file is already there.
var ErrConfigExists = errors.New("config file already exists")

// configTemplate is written by "config init". Every setting is present as a
// commented-out default so users can discover options without reading docs.
const configTemplate = `# datasync configuration

[api]
# base_url = "http://localhost:3005"
# user_agent = ""
# timeout = "30s"
# upload_timeout = "10m"
# How long a command waits for the saved session to load.
# auth_wait = "30s"

[auth]
# Identity provider web API key (or set DATASYNC_API_KEY).
# api_key = ""
# sign_in_url = "https://identitytoolkit.googleapis.com"
# token_url = "https://securetoken.googleapis.com"

[roles]
# user_a = ["usera@example.com"]
# user_b = ["userb@example.com"]

[dashboard]
# UID of the userA account whose submissions a userB watches.
# partner_uid = ""
# poll_interval = "30s"

[uploads]
# parallel = 4
# extensions = [".png", ".jpg", ".jpeg", ".gif"]
# skip_duplicates = true
# Quiet period before a file in a watched folder is uploaded.
# settle_delay = "2s"
# Largest file accepted, e.g. "25MB". "0" means no limit.
# max_file_size = "0"

[logging]
# log_level = "info"
# auto, text or json
# log_format = "auto"
`

// WriteTemplate creates a config file from the default template. It refuses
// to overwrite an existing file. The write is atomic (temp file + rename) and
// parent directories are created as needed.
func WriteTemplate(path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	logger.Info("writing config template", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temp file in the same directory, then
// renames it over path. Same directory guarantees same filesystem for rename.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true

	return nil
}
