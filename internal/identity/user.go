package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// User is a signed-in identity. It satisfies apiclient.User.
type User struct {
	uid   string
	email string

	cfg     *oauth2.Config
	baseCtx context.Context
	logger  *slog.Logger

	mu           sync.Mutex
	src          oauth2.TokenSource
	refreshToken string
}

func (s *Session) newUser(uid, email string, tok *oauth2.Token) *User {
	cfg := s.oauthConfig()

	return &User{
		uid:          uid,
		email:        email,
		cfg:          cfg,
		baseCtx:      s.baseCtx,
		logger:       s.logger,
		src:          cfg.TokenSource(s.baseCtx, tok),
		refreshToken: tok.RefreshToken,
	}
}

// UID is the provider's stable user ID.
func (u *User) UID() string { return u.uid }

// Email is the address the user signed in with.
func (u *User) Email() string { return u.email }

// IDToken returns the user's ID token. Without forceRefresh a cached token is
// returned and silently refreshed once expired; with forceRefresh the refresh
// token is always exchanged.
func (u *User) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if forceRefresh {
		// A token without an access token is never valid, so the new source
		// refreshes on first use and then caches the result.
		u.src = u.cfg.TokenSource(u.baseCtx, &oauth2.Token{RefreshToken: u.refreshToken})
	}

	tok, err := u.src.Token()
	if err != nil {
		u.logger.Warn("token refresh failed",
			slog.String("uid", u.uid),
			slog.String("error", err.Error()),
		)

		return "", fmt.Errorf("identity: obtaining ID token: %w", err)
	}

	if tok.RefreshToken != "" {
		u.refreshToken = tok.RefreshToken
	}

	u.logger.Debug("ID token acquired",
		slog.Bool("forced", forceRefresh),
		slog.Time("expiry", tok.Expiry),
	)

	return idTokenOf(tok), nil
}

// idTokenOf prefers the id_token field of a refresh response. Tokens loaded
// from disk already carry the ID token as their access token.
func idTokenOf(tok *oauth2.Token) string {
	if v, ok := tok.Extra("id_token").(string); ok && v != "" {
		return v
	}

	return tok.AccessToken
}

// storedToken is the form persisted to the session file.
func storedToken(tok *oauth2.Token) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  idTokenOf(tok),
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
