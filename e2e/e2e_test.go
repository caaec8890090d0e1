//go:build e2e

package e2e

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/datasync-go/testutil"
)

// Variables the live suite needs. The API key and URL are passed straight
// through to the binary via its own environment overrides.
const (
	envAPIURL    = "DATASYNC_API_URL"
	envAPIKey    = "DATASYNC_API_KEY"
	envEmailA    = "DATASYNC_E2E_USER_A_EMAIL"
	envPasswordA = "DATASYNC_E2E_USER_A_PASSWORD"
	envEmailB    = "DATASYNC_E2E_USER_B_EMAIL"
	envPasswordB = "DATASYNC_E2E_USER_B_PASSWORD"
)

var (
	binaryPath string
	creds      map[string]string

	// Each account gets its own isolated HOME so sessions never collide.
	userA *account
	userB *account
)

// account is one signed-in identity with its own config and data dirs.
type account struct {
	email    string
	password string
	root     string
	env      []string
}

func TestMain(m *testing.M) {
	moduleRoot := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(moduleRoot, ".env"))

	creds = testutil.RequireEnv(envAPIURL, envAPIKey, envEmailA, envPasswordA, envEmailB, envPasswordB)
	testutil.ValidateAllowlist(creds[envEmailA], creds[envEmailB])

	tmpDir, err := os.MkdirTemp("", "datasync-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "datasync")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = moduleRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	userA = newAccount(tmpDir, "a", creds[envEmailA], creds[envPasswordA])
	userB = newAccount(tmpDir, "b", creds[envEmailB], creds[envPasswordB])

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// newAccount creates an isolated HOME/XDG tree with a config file that maps
// both test accounts to their roles.
func newAccount(tmpDir, name, email, password string) *account {
	root := filepath.Join(tmpDir, name)
	configHome := filepath.Join(root, "config")
	dataHome := filepath.Join(root, "data")

	for _, d := range []string{root, filepath.Join(configHome, "datasync"), dataHome} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: creating %s: %v\n", d, err)
			os.Exit(1)
		}
	}

	cfg := fmt.Sprintf("[roles]\nuser_a = [%q]\nuser_b = [%q]\n\n[logging]\nlog_format = \"text\"\n",
		creds[envEmailA], creds[envEmailB])

	cfgPath := filepath.Join(configHome, "datasync", "config.toml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: writing %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + root,
		"XDG_CONFIG_HOME=" + configHome,
		"XDG_DATA_HOME=" + dataHome,
		envAPIURL + "=" + creds[envAPIURL],
		envAPIKey + "=" + creds[envAPIKey],
	}

	return &account{email: email, password: password, root: root, env: env}
}

// run executes the binary as this account and returns stdout and stderr.
func (a *account) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = a.env
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	t.Logf("datasync %s (%s)", strings.Join(args, " "), time.Since(start).Round(time.Millisecond))

	return stdout.String(), stderr.String(), err
}

// mustRun fails the test when the command exits non-zero.
func (a *account) mustRun(t *testing.T, args ...string) string {
	t.Helper()

	stdout, stderr, err := a.run(t, "", args...)
	require.NoError(t, err, "datasync %v failed\nstderr: %s", args, stderr)

	return stdout
}

// login signs the account in, reading the password from stdin.
func (a *account) login(t *testing.T) {
	t.Helper()

	_, stderr, err := a.run(t, a.password+"\n", "login", "--email", a.email)
	require.NoError(t, err, "login as %s failed\nstderr: %s", a.email, stderr)
}
