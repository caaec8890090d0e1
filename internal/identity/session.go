// Package identity implements an email/password session against the
// identity provider's REST API. A Session satisfies apiclient.Session: it
// restores a persisted sign-in in the background, exposes the current user,
// and notifies listeners when the auth state changes.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/datasync-go/internal/apiclient"
	"github.com/tonimelisma/datasync-go/internal/tokenfile"
)

// Default provider endpoints. Tests and emulators override them via Options.
const (
	DefaultSignInURL = "https://identitytoolkit.googleapis.com"
	DefaultTokenURL  = "https://securetoken.googleapis.com"
)

// requestTimeout bounds the provider's HTTP calls when Options.HTTPClient is nil.
const requestTimeout = 30 * time.Second

// Options configures a Session.
type Options struct {
	APIKey      string
	SignInURL   string
	TokenURL    string
	SessionPath string
	HTTPClient  *http.Client
}

// Session tracks the signed-in user. Safe for concurrent use.
type Session struct {
	opts   Options
	logger *slog.Logger

	// baseCtx carries the HTTP client for oauth2 token sources, which outlive
	// any single request.
	baseCtx context.Context

	mu        sync.Mutex
	user      *User
	ready     bool
	readyCh   chan struct{}
	listeners map[int]func(apiclient.User)
	nextID    int
}

// Open creates a Session and starts restoring the persisted sign-in from
// opts.SessionPath. Until the restore finishes CurrentUser reports nil and
// new listeners are notified once it completes.
func Open(ctx context.Context, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.SignInURL == "" {
		opts.SignInURL = DefaultSignInURL
	}

	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: requestTimeout}
	}

	s := &Session{
		opts:      opts,
		logger:    logger,
		baseCtx:   context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, opts.HTTPClient),
		readyCh:   make(chan struct{}),
		listeners: make(map[int]func(apiclient.User)),
	}

	go s.restore()

	return s
}

// restore loads the session file and publishes the result as the first
// auth state.
func (s *Session) restore() {
	var user *User

	rec, err := tokenfile.Load(s.opts.SessionPath)

	switch {
	case err != nil:
		s.logger.Warn("discarding unreadable session",
			slog.String("path", s.opts.SessionPath),
			slog.String("error", err.Error()),
		)
	case rec == nil:
		s.logger.Debug("no saved session", slog.String("path", s.opts.SessionPath))
	default:
		user = s.newUser(rec.UID, rec.Email, rec.Token)
		s.logger.Info("restored session",
			slog.String("uid", rec.UID),
			slog.Time("expiry", rec.Token.Expiry),
		)
	}

	// User and readiness flip together so a listener registered in between
	// never sees a ready session without its user.
	s.mu.Lock()
	s.user = user
	s.ready = true
	close(s.readyCh)
	fns := s.snapshotListeners()
	s.mu.Unlock()

	notify(fns, user)
}

// Ready is closed once the persisted session has been restored (or found
// missing).
func (s *Session) Ready() <-chan struct{} {
	return s.readyCh
}

// CurrentUser returns the signed-in user, or nil. The nil is untyped so
// callers comparing against nil see an absent user.
func (s *Session) CurrentUser() apiclient.User {
	u := s.Current()
	if u == nil {
		return nil
	}

	return u
}

// Current is CurrentUser with the concrete type, for callers that need the
// UID or email.
func (s *Session) Current() *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.user
}

// OnAuthStateChanged registers fn for auth state changes. When the session is
// already restored fn is also called once, asynchronously, with the current
// state. The returned function unregisters fn.
func (s *Session) OnAuthStateChanged(fn func(apiclient.User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	ready := s.ready
	current := s.user
	s.mu.Unlock()

	if ready {
		go fn(asAPIUser(current))
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// publish replaces the current user and notifies every listener.
func (s *Session) publish(u *User) {
	s.mu.Lock()
	s.user = u
	fns := s.snapshotListeners()
	s.mu.Unlock()

	notify(fns, u)
}

// snapshotListeners copies the listener set. Caller holds s.mu.
func (s *Session) snapshotListeners() []func(apiclient.User) {
	fns := make([]func(apiclient.User), 0, len(s.listeners))

	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}

	return fns
}

func notify(fns []func(apiclient.User), u *User) {
	for _, fn := range fns {
		fn(asAPIUser(u))
	}
}

// SignOut forgets the current user and deletes the persisted session.
func (s *Session) SignOut() error {
	<-s.readyCh

	if err := tokenfile.Remove(s.opts.SessionPath); err != nil {
		return fmt.Errorf("identity: signing out: %w", err)
	}

	s.logger.Info("signed out", slog.String("path", s.opts.SessionPath))
	s.publish(nil)

	return nil
}

// oauthConfig builds the refresh-token config for the provider's token
// endpoint. Refreshed tokens are persisted through OnTokenChange.
func (s *Session) oauthConfig() *oauth2.Config {
	tokenURL := strings.TrimRight(s.opts.TokenURL, "/") + "/v1/token?key=" + url.QueryEscape(s.opts.APIKey)
	path := s.opts.SessionPath
	logger := s.logger

	return &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		// Called by ReuseTokenSource after each refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			if err := tokenfile.UpdateToken(path, storedToken(tok)); err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)

				return
			}

			logger.Debug("persisted refreshed token",
				slog.String("path", path),
				slog.Time("expiry", tok.Expiry),
			)
		},
	}
}

// asAPIUser converts without producing a typed nil interface.
func asAPIUser(u *User) apiclient.User {
	if u == nil {
		return nil
	}

	return u
}
