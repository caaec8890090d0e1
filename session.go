package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/tonimelisma/datasync-go/internal/apiclient"
	"github.com/tonimelisma/datasync-go/internal/dashboard"
	"github.com/tonimelisma/datasync-go/internal/identity"
	"github.com/tonimelisma/datasync-go/internal/ledger"
)

// errAccessDenied is returned when the signed-in user's role may not run a
// command.
var errAccessDenied = errors.New("access denied")

// errNotLoggedIn is returned by commands that need a signed-in user.
var errNotLoggedIn = errors.New("not logged in: run 'datasync login' first")

// AppSession bundles the identity session with the API clients built on it.
type AppSession struct {
	Identity *identity.Session
	Client   *apiclient.Client
	Service  *dashboard.Service
	User     *identity.User
	Role     identity.Role
}

func openIdentity(ctx context.Context, cc *CLIContext) *identity.Session {
	cfg := cc.Cfg

	return identity.Open(ctx, identity.Options{
		APIKey:      cfg.Auth.APIKey,
		SignInURL:   cfg.Auth.SignInURL,
		TokenURL:    cfg.Auth.TokenURL,
		SessionPath: cfg.SessionPath,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
	}, cc.Logger)
}

func newAPIClient(cc *CLIContext, session apiclient.Session) *apiclient.Client {
	cfg := cc.Cfg

	opts := []apiclient.ClientOption{
		apiclient.WithUploadHTTPClient(&http.Client{Timeout: cfg.UploadTimeout}),
		apiclient.WithAuthWait(cfg.AuthWait),
	}

	ua := cfg.API.UserAgent
	if ua == "" {
		ua = "datasync/" + version
	}

	opts = append(opts, apiclient.WithUserAgent(ua))

	return apiclient.NewClient(cfg.API.BaseURL, &http.Client{Timeout: cfg.Timeout}, session, cc.Logger, opts...)
}

func newDashboardService(cc *CLIContext, client *apiclient.Client) *dashboard.Service {
	return dashboard.New(client, cc.Logger,
		dashboard.WithExtensions(cc.Cfg.Uploads.Extensions),
		dashboard.WithMaxFileSize(cc.Cfg.MaxFileSize),
	)
}

func roles(cc *CLIContext) identity.Roles {
	return identity.Roles{UserA: cc.Cfg.Roles.UserA, UserB: cc.Cfg.Roles.UserB}
}

// openAppSession waits for the persisted session to restore and returns the
// signed-in user's clients. With allowed roles given, any other role is
// refused with errAccessDenied.
func openAppSession(ctx context.Context, cc *CLIContext, allowed ...identity.Role) (*AppSession, error) {
	session := openIdentity(ctx, cc)

	select {
	case <-session.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	user := session.Current()
	if user == nil {
		return nil, errNotLoggedIn
	}

	role := identity.RoleFor(user.Email(), roles(cc))

	if len(allowed) > 0 && !slices.Contains(allowed, role) {
		cc.Logger.Debug("role check failed",
			slog.String("email", user.Email()),
			slog.String("role", role.String()),
		)

		return nil, fmt.Errorf("%w: %s has role %s", errAccessDenied, user.Email(), role)
	}

	client := newAPIClient(cc, session)

	return &AppSession{
		Identity: session,
		Client:   client,
		Service:  newDashboardService(cc, client),
		User:     user,
		Role:     role,
	}, nil
}

// partnerUID returns the userA account that userB commands read and write.
func partnerUID(cc *CLIContext) (string, error) {
	if cc.Cfg.Dashboard.PartnerUID == "" {
		return "", errors.New("no partner configured: set dashboard.partner_uid, " +
			"DATASYNC_PARTNER_UID or --partner")
	}

	return cc.Cfg.Dashboard.PartnerUID, nil
}

// openLedger opens the local history database. Callers must Close it.
func openLedger(ctx context.Context, cc *CLIContext) (*ledger.Store, error) {
	store, err := ledger.Open(ctx, cc.Cfg.LedgerPath, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}

	return store, nil
}
