package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUser mints tokens from a fixed list. A forced refresh advances to the
// next token; the last token is reused once the list runs out.
type fakeUser struct {
	mu       sync.Mutex
	tokens   []string
	idx      int
	forced   int
	plain    int
	tokenErr error
}

func newFakeUser(tokens ...string) *fakeUser {
	return &fakeUser{tokens: tokens}
}

func (u *fakeUser) IDToken(_ context.Context, forceRefresh bool) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.tokenErr != nil {
		return "", u.tokenErr
	}

	if forceRefresh {
		u.forced++
		if u.idx < len(u.tokens)-1 {
			u.idx++
		}
	} else {
		u.plain++
	}

	return u.tokens[u.idx], nil
}

func (u *fakeUser) forcedCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.forced
}

// fakeSession is an in-memory Session. Built with a nil user, CurrentUser
// reports nil until emit is called, like a session that is still restoring.
type fakeSession struct {
	mu        sync.Mutex
	user      User
	listeners map[int]func(User)
	nextID    int
	subs      atomic.Int32
	unsubs    atomic.Int32
}

func newFakeSession(user User) *fakeSession {
	return &fakeSession{user: user, listeners: make(map[int]func(User))}
}

func (s *fakeSession) CurrentUser() User {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.user
}

func (s *fakeSession) OnAuthStateChanged(fn func(User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	s.subs.Add(1)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
		s.unsubs.Add(1)
	}
}

// emit sets the current user and notifies every registered listener.
func (s *fakeSession) emit(u User) {
	s.mu.Lock()
	s.user = u
	fns := make([]func(User), 0, len(s.listeners))

	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (s *fakeSession) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.listeners)
}

// immediateSession notifies synchronously from inside OnAuthStateChanged,
// before the unsubscribe function has been returned.
type immediateSession struct {
	user User
}

func (s immediateSession) CurrentUser() User { return nil }

func (s immediateSession) OnAuthStateChanged(fn func(User)) func() {
	fn(s.user)
	return func() {}
}

// newTestClient creates a Client pointing at the given httptest server with a
// signed-in fake user holding "mock-token".
func newTestClient(t *testing.T, url string) (*Client, *fakeUser) {
	t.Helper()

	user := newFakeUser("mock-token")
	c := NewClient(url, http.DefaultClient, newFakeSession(user), slog.Default())
	c.newRequestID = func() string { return "req-1" }

	return c, user
}

func TestGet_ReturnsDecodedBodyAndSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/test", r.URL.Path)
		assert.Equal(t, "Bearer mock-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	var got map[string]any
	require.NoError(t, client.Get(context.Background(), "/test", &got))
	assert.Equal(t, map[string]any{"success": true}, got)
}

func TestGet_ErrorMessageFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message": "Internal error"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	err := client.Get(context.Background(), "/fail", nil)
	require.Error(t, err)
	assert.Equal(t, "Internal error", err.Error())
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestGet_GenericErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>bad gateway</html>"},
		{"empty body", ""},
		{"json without message", `{"error":"nope"}`},
		{"empty message", `{"message":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, _ := newTestClient(t, srv.URL)

			err := client.Get(context.Background(), "/x", nil)
			require.Error(t, err)
			assert.Equal(t, "HTTP error! status: 502", err.Error())
		})
	}
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"throttled", http.StatusTooManyRequests, ErrThrottled},
		{"server error", http.StatusServiceUnavailable, ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-Request-ID", "server-req")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client, _ := newTestClient(t, srv.URL)

			err := client.Get(context.Background(), "/x", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, "server-req", httpErr.RequestID)
		})
	}
}

func TestDo_UnauthorizedRefreshesAndRetriesOnce(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	user := newFakeUser("stale-token", "fresh-token")
	client := NewClient(srv.URL, http.DefaultClient, newFakeSession(user), slog.Default())

	var got struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.Get(context.Background(), "/me", &got))

	assert.True(t, got.OK)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, user.forcedCount())
}

func TestDo_SecondUnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token revoked"}`))
	}))
	defer srv.Close()

	client, user := newTestClient(t, srv.URL)

	err := client.Get(context.Background(), "/me", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "token revoked", err.Error())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, user.forcedCount())
}

func TestDo_ConcurrentCallsHaveIndependentRetryBudgets(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	const callers = 5

	var wg sync.WaitGroup

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := client.Get(context.Background(), "/x", nil)
			assert.ErrorIs(t, err, ErrUnauthorized)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(callers*2), calls.Load())
}

func TestDo_RefreshFailureIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	user := &refreshFailingUser{}
	client := NewClient(srv.URL, http.DefaultClient, newFakeSession(user), slog.Default())

	err := client.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refreshing token")
}

type refreshFailingUser struct{}

func (refreshFailingUser) IDToken(_ context.Context, force bool) (string, error) {
	if force {
		return "", errors.New("refresh token expired")
	}

	return "tok", nil
}

func TestVerbs_MethodsAndBodies(t *testing.T) {
	type seen struct {
		method string
		body   string
	}

	var (
		mu   sync.Mutex
		last seen
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		last = seen{method: r.Method, body: string(body)}
		mu.Unlock()

		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	lastSeen := func() seen {
		mu.Lock()
		defer mu.Unlock()

		return last
	}

	client, _ := newTestClient(t, srv.URL)
	ctx := context.Background()
	payload := map[string]int{"n": 1}

	require.NoError(t, client.Post(ctx, "/p", payload, nil))
	assert.Equal(t, seen{http.MethodPost, `{"n":1}`}, lastSeen())

	require.NoError(t, client.Put(ctx, "/p", payload, nil))
	assert.Equal(t, seen{http.MethodPut, `{"n":1}`}, lastSeen())

	require.NoError(t, client.Delete(ctx, "/p", nil))
	assert.Equal(t, seen{http.MethodDelete, ""}, lastSeen())

	require.NoError(t, client.Get(ctx, "/p", nil))
	assert.Equal(t, seen{http.MethodGet, ""}, lastSeen())
}

func TestDo_CallerHeadersMerge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		assert.Equal(t, "application/merge-patch+json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer mock-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	hdr := http.Header{}
	hdr.Set("X-Extra", "yes")
	hdr.Set("Content-Type", "application/merge-patch+json")

	err := client.Do(context.Background(), Request{
		Method: http.MethodPut,
		Path:   "/merge",
		Body:   json.RawMessage(`{"a":1}`),
		Header: hdr,
	}, nil)
	require.NoError(t, err)
}

func TestDo_InvalidJSONIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	var out map[string]any
	err := client.Get(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, ErrDecode)

	err = client.Get(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDo_NoContentLeavesTargetUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	out := map[string]any{"kept": true}
	require.NoError(t, client.Delete(context.Background(), "/x", &out))
	assert.Equal(t, map[string]any{"kept": true}, out)
}

func TestDo_EmptySuccessBodyIsDecodeError(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			client, _ := newTestClient(t, srv.URL)

			var out map[string]any

			err := client.Get(context.Background(), "/x", &out)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Nil(t, out)
		})
	}
}

func TestDo_ErrorBodyIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(bytes.Repeat([]byte("x"), maxErrorBody+4096))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	err := client.Get(context.Background(), "/x", nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Len(t, httpErr.Body, maxErrorBody)
	assert.Equal(t, "HTTP error! status: 500", httpErr.Message)
}

func TestDo_NetworkError(t *testing.T) {
	client, _ := newTestClient(t, "http://127.0.0.1:1")

	err := client.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}

func TestDo_UnencodableBody(t *testing.T) {
	client, _ := newTestClient(t, "http://127.0.0.1:1")

	err := client.Post(context.Background(), "/x", map[string]any{"ch": make(chan int)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding request body")
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", nil, newFakeSession(nil), nil)

	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, http.DefaultClient, c.httpClient)
	assert.NotNil(t, c.uploadClient)
	assert.Equal(t, defaultUserAgent, c.userAgent)
}

func TestNewClient_Options(t *testing.T) {
	upload := &http.Client{Timeout: time.Hour}
	c := NewClient("http://api.test/", nil, newFakeSession(nil), nil,
		WithUserAgent("custom/1.0"),
		WithUploadHTTPClient(upload),
		WithAuthWait(5*time.Second),
	)

	assert.Equal(t, "http://api.test", c.BaseURL())
	assert.Equal(t, "custom/1.0", c.userAgent)
	assert.Same(t, upload, c.uploadClient)
	assert.Equal(t, 5*time.Second, c.authWait)
}
