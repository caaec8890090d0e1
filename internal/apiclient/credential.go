package apiclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// User is a signed-in identity able to mint bearer tokens. Defined here at
// the consumer; internal/identity provides the real implementation.
type User interface {
	// IDToken returns the user's identity token. forceRefresh discards any
	// cached token and asks the provider for a newly issued one.
	IDToken(ctx context.Context, forceRefresh bool) (string, error)
}

// Session is the identity provider's view of who is signed in.
type Session interface {
	// CurrentUser returns the signed-in user, or nil when nobody is signed
	// in or the session has not finished initializing.
	CurrentUser() User

	// OnAuthStateChanged registers fn for auth state notifications and
	// returns a function that removes the registration. fn receives nil on
	// sign-out.
	OnAuthStateChanged(fn func(User)) (unsubscribe func())
}

// authToken resolves a bearer token for one outbound request. When the
// session has no current user yet, it waits for the first auth state
// notification and uses whatever user that notification carries.
func (c *Client) authToken(ctx context.Context) (string, error) {
	user := c.session.CurrentUser()
	if user == nil {
		awaited, err := c.awaitUser(ctx)
		if err != nil {
			return "", err
		}

		user = awaited
	}

	tok, err := user.IDToken(ctx, false)
	if err != nil {
		return "", fmt.Errorf("apiclient: obtaining token: %w", err)
	}

	if tok == "" {
		return "", ErrEmptyToken
	}

	return tok, nil
}

// awaitUser blocks until the session emits its first auth state change.
// The registration is dropped as soon as one notification has been seen.
func (c *Client) awaitUser(ctx context.Context) (User, error) {
	if c.authWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.authWait)
		defer cancel()
	}

	c.logger.Debug("waiting for auth state", slog.Duration("auth_wait", c.authWait))

	// The session may invoke the callback before OnAuthStateChanged returns,
	// so the first value is parked in a buffered channel.
	first := make(chan User, 1)

	var once sync.Once

	unsubscribe := c.session.OnAuthStateChanged(func(u User) {
		once.Do(func() { first <- u })
	})
	defer unsubscribe()

	started := time.Now()

	select {
	case u := <-first:
		if u == nil {
			c.logger.Debug("auth state resolved without a user",
				slog.Duration("waited", time.Since(started)),
			)

			return nil, ErrNoAuthenticatedUser
		}

		return u, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("apiclient: waiting for authenticated user: %w", ctx.Err())
	}
}

// forceRefresh asks the current user for a newly issued token. A session
// that lost its user in the meantime is not an error here: the retry will
// surface ErrNoAuthenticatedUser through authToken.
func (c *Client) forceRefresh(ctx context.Context) error {
	user := c.session.CurrentUser()
	if user == nil {
		return nil
	}

	if _, err := user.IDToken(ctx, true); err != nil {
		return fmt.Errorf("apiclient: refreshing token: %w", err)
	}

	return nil
}
