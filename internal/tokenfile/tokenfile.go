// Package tokenfile persists a signed-in session: the OAuth2 token pair plus
// the identity it belongs to. It is a leaf package so both config/ and
// identity/ can use it without an import cycle.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// Record is the on-disk session format.
type Record struct {
	Token *oauth2.Token     `json:"token"`
	UID   string            `json:"uid"`
	Email string            `json:"email"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads a saved session from disk. Returns (nil, nil) if the file does
// not exist.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if rec.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s missing token field (sign in again)", path)
	}

	if rec.Token.RefreshToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has no refresh token (sign in again)", path)
	}

	return &rec, nil
}

// Save writes a session file atomically (write-to-temp + rename) with 0600
// permissions. Never logs token values.
func Save(path string, rec *Record) error {
	if rec == nil || rec.Token == nil {
		return errors.New("tokenfile: refusing to save a record without a token")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// UpdateToken replaces the token in an existing session file, keeping the
// identity and metadata. Used after silent refreshes.
func UpdateToken(path string, tok *oauth2.Token) error {
	rec, err := Load(path)
	if err != nil {
		return fmt.Errorf("reading session for token update: %w", err)
	}

	if rec == nil {
		return fmt.Errorf("no session file at %s", path)
	}

	// Refresh responses may omit the refresh token; keep the old one.
	if tok.RefreshToken == "" {
		cp := *tok
		cp.RefreshToken = rec.Token.RefreshToken
		tok = &cp
	}

	rec.Token = tok

	return Save(path, rec)
}

// MergeMeta reads the session file, merges new metadata keys (new keys
// overwrite existing), and saves.
func MergeMeta(path string, meta map[string]string) error {
	rec, err := Load(path)
	if err != nil {
		return fmt.Errorf("reading session for metadata update: %w", err)
	}

	if rec == nil {
		return fmt.Errorf("no session file at %s", path)
	}

	if rec.Meta == nil {
		rec.Meta = make(map[string]string, len(meta))
	}

	maps.Copy(rec.Meta, meta)

	return Save(path, rec)
}

// Remove deletes the session file. A missing file is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
