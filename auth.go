package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tonimelisma/datasync-go/internal/identity"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. The password is read from the terminal
without echo, or as one line from stdin when stdin is not a terminal.`,
		RunE: runLogin,
	}

	cmd.Flags().String("email", "", "account email (prompted when omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved session",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user and role",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	in := bufio.NewReader(cmd.InOrStdin())

	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}

	if email == "" {
		fmt.Fprint(cc.Stderr, "Email: ")

		if email, err = readLine(in); err != nil {
			return fmt.Errorf("reading email: %w", err)
		}
	}

	if email == "" {
		return errors.New("email is required")
	}

	// Prompts must stay visible even with --quiet.
	fmt.Fprint(cc.Stderr, "Password: ")

	password, err := readSecret(cmd.InOrStdin(), in)
	fmt.Fprintln(cc.Stderr)

	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	session := openIdentity(ctx, cc)

	cc.Logger.Info("login started", slog.String("email", email))

	user, err := session.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return fmt.Errorf("login failed: %w", err)
		}

		return err
	}

	role := identity.RoleFor(user.Email(), roles(cc))
	cc.Logger.Info("login successful",
		slog.String("uid", user.UID()),
		slog.String("role", role.String()),
	)
	cc.Statusf("Logged in as %s (role %s).\n", user.Email(), role)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	session := openIdentity(ctx, cc)

	select {
	case <-session.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	if session.Current() == nil {
		cc.Statusf("Not logged in.\n")
		return nil
	}

	if err := session.SignOut(); err != nil {
		return err
	}

	cc.Logger.Info("logout successful")
	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	app, err := openAppSession(ctx, cc)
	if err != nil {
		return err
	}

	// Confirms the saved refresh token still works.
	if _, err := app.User.IDToken(ctx, false); err != nil {
		return fmt.Errorf("session expired: run 'datasync login' again: %w", err)
	}

	out := whoamiOutput{UID: app.User.UID(), Email: app.User.Email(), Role: app.Role.String()}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	fmt.Fprintf(cc.Stdout, "User:  %s\n", out.Email)
	fmt.Fprintf(cc.Stdout, "UID:   %s\n", out.UID)
	fmt.Fprintf(cc.Stdout, "Role:  %s\n", out.Role)

	return nil
}

// readSecret reads a password without echo when raw is a terminal, and
// otherwise one line from buffered.
func readSecret(raw io.Reader, buffered *bufio.Reader) (string, error) {
	if f, ok := raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}

		return string(b), nil
	}

	return readLine(buffered)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}
