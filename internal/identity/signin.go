package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/datasync-go/internal/tokenfile"
)

// ErrInvalidCredentials is returned by SignIn when the provider rejects the
// email or password.
var ErrInvalidCredentials = errors.New("identity: invalid email or password")

// maxProviderBody caps how much of a provider response is read.
const maxProviderBody = 1 << 20

// defaultTokenLifetime applies when the provider omits expiresIn.
const defaultTokenLifetime = time.Hour

// Provider error codes that mean "wrong credentials" rather than an outage.
var credentialErrorCodes = map[string]bool{
	"EMAIL_NOT_FOUND":           true,
	"INVALID_PASSWORD":          true,
	"INVALID_LOGIN_CREDENTIALS": true,
	"INVALID_EMAIL":             true,
	"USER_DISABLED":             true,
	"MISSING_PASSWORD":          true,
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn authenticates with email and password, persists the session and
// notifies listeners.
func (s *Session) SignIn(ctx context.Context, email, password string) (*User, error) {
	select {
	case <-s.readyCh:
	case <-ctx.Done():
		return nil, fmt.Errorf("identity: waiting for session restore: %w", ctx.Err())
	}

	payload, err := json.Marshal(signInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return nil, fmt.Errorf("identity: encoding sign-in request: %w", err)
	}

	endpoint := strings.TrimRight(s.opts.SignInURL, "/") +
		"/v1/accounts:signInWithPassword?key=" + url.QueryEscape(s.opts.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("identity: creating sign-in request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	s.logger.Info("signing in", slog.String("email", email))

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: sign-in request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return nil, fmt.Errorf("identity: reading sign-in response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, signInError(resp.StatusCode, body)
	}

	var out signInResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("identity: decoding sign-in response: %w", err)
	}

	if out.IDToken == "" || out.RefreshToken == "" {
		return nil, errors.New("identity: sign-in response missing tokens")
	}

	tok := &oauth2.Token{
		AccessToken:  out.IDToken,
		TokenType:    "Bearer",
		RefreshToken: out.RefreshToken,
		Expiry:       time.Now().Add(parseLifetime(out.ExpiresIn)),
	}

	if out.Email == "" {
		out.Email = email
	}

	rec := &tokenfile.Record{Token: tok, UID: out.LocalID, Email: out.Email}
	if out.DisplayName != "" {
		rec.Meta = map[string]string{"display_name": out.DisplayName}
	}

	if err := tokenfile.Save(s.opts.SessionPath, rec); err != nil {
		return nil, fmt.Errorf("identity: saving session: %w", err)
	}

	user := s.newUser(out.LocalID, out.Email, tok)

	s.logger.Info("signed in",
		slog.String("uid", out.LocalID),
		slog.Time("expiry", tok.Expiry),
	)

	s.publish(user)

	return user, nil
}

// signInError maps a provider error body to an error. Messages look like
// "INVALID_PASSWORD" or "TOO_MANY_ATTEMPTS_TRY_LATER : detail".
func signInError(status int, body []byte) error {
	var perr providerError
	if json.Unmarshal(body, &perr) != nil || perr.Error.Message == "" {
		return fmt.Errorf("identity: sign-in failed: HTTP %d", status)
	}

	code, _, _ := strings.Cut(perr.Error.Message, " ")
	if credentialErrorCodes[code] {
		return fmt.Errorf("%w (%s)", ErrInvalidCredentials, code)
	}

	return fmt.Errorf("identity: sign-in failed: %s (HTTP %d)", perr.Error.Message, status)
}

func parseLifetime(expiresIn string) time.Duration {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		return defaultTokenLifetime
	}

	return time.Duration(secs) * time.Second
}
