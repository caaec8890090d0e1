package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:3005"

	defaultUserAgent = "datasync-go/0.1"

	// maxAuthRetries caps the 401 -> refresh -> retry path per call.
	maxAuthRetries = 1

	headerRequestID = "X-Request-ID"

	// maxErrorBody caps how much of a non-2xx body is read.
	maxErrorBody = 1 << 20
)

// Request describes one JSON call. Path is appended to the client's base URL.
// Body is JSON-encoded when non-nil. Header entries are applied after the
// fixed headers, so a caller header with the same name wins.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header
}

// Client is a long-lived, concurrency-safe client for the DataSync API.
// JSON calls and uploads use separate transports: uploads need to observe
// body consumption for progress reporting, JSON calls do not.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	uploadClient *http.Client
	session      Session
	logger       *slog.Logger
	userAgent    string
	authWait     time.Duration

	// newRequestID generates the X-Request-ID header value. Tests override it.
	newRequestID func() string
}

// ClientOption customizes a Client at construction.
type ClientOption func(*Client)

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithUploadHTTPClient sets the transport used by UploadFile. By default
// uploads share the JSON transport's round tripper but carry no overall
// timeout, since upload duration scales with file size.
func WithUploadHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.uploadClient = hc
		}
	}
}

// WithAuthWait bounds how long credential resolution waits for the session's
// first auth state notification. Zero waits until the call's context ends.
func WithAuthWait(d time.Duration) ClientOption {
	return func(c *Client) {
		c.authWait = d
	}
}

// NewClient creates a DataSync API client. An empty baseURL falls back to
// DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, session Session, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		uploadClient: &http.Client{Transport: httpClient.Transport},
		session:      session,
		logger:       logger,
		userAgent:    defaultUserAgent,
		newRequestID: uuid.NewString,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the base URL every path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches path and decodes the JSON response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

// Post sends body as JSON to path and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put sends body as JSON to path and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete deletes path and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// Do executes req. A credential is resolved before every attempt. A 401
// response forces one token refresh and one retry; any other non-2xx status,
// or a second 401, is returned as *HTTPError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	payload, err := encodeBody(req.Body)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		tok, err := c.authToken(ctx)
		if err != nil {
			c.logger.Error("API request failed",
				slog.String("method", method),
				slog.String("path", req.Path),
				slog.String("error", err.Error()),
			)

			return err
		}

		resp, err := c.doOnce(ctx, method, req.Path, payload, tok, req.Header)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("apiclient: request canceled: %w", ctx.Err())
			}

			c.logger.Error("API request failed",
				slog.String("method", method),
				slog.String("path", req.Path),
				slog.String("error", err.Error()),
			)

			return fmt.Errorf("apiclient: %s %s: %w", method, req.Path, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", req.Path),
				slog.Int("status", resp.StatusCode),
			)

			return decodeSuccess(resp, out)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt < maxAuthRetries {
			drainAndClose(resp.Body)

			c.logger.Warn("unauthorized, refreshing token and retrying",
				slog.String("method", method),
				slog.String("path", req.Path),
				slog.Int("attempt", attempt+1),
			)

			if err := c.forceRefresh(ctx); err != nil {
				return err
			}

			continue
		}

		httpErr := errorFromResponse(resp)

		c.logger.Error("API request failed",
			slog.String("method", method),
			slog.String("path", req.Path),
			slog.Int("status", httpErr.StatusCode),
			slog.Int("attempts", attempt+1),
			slog.String("request_id", httpErr.RequestID),
		)

		return httpErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(
	ctx context.Context, method, path string, payload []byte, tok string, extra http.Header,
) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(headerRequestID, c.newRequestID())

	for name, values := range extra {
		req.Header.Del(name)

		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	return c.httpClient.Do(req)
}

// encodeBody JSON-encodes a request body. A nil body sends no payload.
func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: encoding request body: %w", err)
	}

	return data, nil
}

// decodeSuccess decodes a 2xx response body into out. A 204 leaves out
// untouched; any other 2xx body must be valid JSON even when out is nil.
func decodeSuccess(resp *http.Response, out any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apiclient: reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty body in %d response", ErrDecode, resp.StatusCode)
	}

	if out == nil {
		if !json.Valid(data) {
			return fmt.Errorf("%w: invalid JSON in %d response", ErrDecode, resp.StatusCode)
		}

		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return nil
}

// errorFromResponse builds an *HTTPError from a non-2xx response, preferring
// the server-supplied "message" field.
func errorFromResponse(resp *http.Response) *HTTPError {
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		body = nil
	}

	var parsed struct {
		Message string `json:"message"`
	}

	// An unparseable error body behaves like an empty object.
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed.Message = ""
	}

	msg := parsed.Message
	if msg == "" {
		msg = genericStatusMessage(resp.StatusCode)
	}

	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		RequestID:  resp.Header.Get(headerRequestID),
		Body:       body,
		Err:        classifyStatus(resp.StatusCode),
	}
}

// drainAndClose consumes the rest of body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}
