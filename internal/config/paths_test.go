package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHome = "/home/testuser"

func TestDefaultDirs_NonEmpty(t *testing.T) {
	for _, dir := range []string{DefaultConfigDir(), DefaultDataDir()} {
		assert.NotEmpty(t, dir)
		assert.Contains(t, dir, appName)
	}
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultConfigPath(), "config.toml"))
}

func TestDataFilesLiveInDataDir(t *testing.T) {
	assert.Equal(t, filepath.Join(DefaultDataDir(), "session.json"), SessionPath())
	assert.Equal(t, filepath.Join(DefaultDataDir(), "ledger.db"), LedgerPath())
}

func TestDefaultDirs_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	assert.Contains(t, DefaultConfigDir(), "Library/Application Support")
	assert.Contains(t, DefaultDataDir(), "Library/Application Support")
}

func TestXDGDir_Override(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, filepath.Join("/custom/config", appName), xdgDir("XDG_CONFIG_HOME", testHome, ".config"))
}

func TestXDGDir_DefaultFallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	os.Unsetenv("XDG_DATA_HOME")

	assert.Equal(t, filepath.Join(testHome, ".local", "share", appName),
		xdgDir("XDG_DATA_HOME", testHome, ".local", "share"))
}

func TestDefaultDataDir_LinuxXDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	assert.Equal(t, filepath.Join("/xdg/data", appName), DefaultDataDir())
}
