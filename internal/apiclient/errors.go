// Package apiclient provides an authenticated HTTP client for the DataSync
// API server. Every call carries a bearer token resolved from an identity
// session; a single 401 triggers one forced token refresh and one retry.
package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Credential errors.
var (
	ErrNoAuthenticatedUser = errors.New("apiclient: no authenticated user")
	ErrEmptyToken          = errors.New("apiclient: identity session returned an empty token")
)

// Transfer errors.
var (
	ErrUploadFailed = errors.New("apiclient: upload failed")
	ErrDecode       = errors.New("apiclient: decoding response")
	ErrSizeMismatch = errors.New("apiclient: upload content does not match declared size")
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, apiclient.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("apiclient: bad request")
	ErrUnauthorized = errors.New("apiclient: unauthorized")
	ErrForbidden    = errors.New("apiclient: forbidden")
	ErrNotFound     = errors.New("apiclient: not found")
	ErrConflict     = errors.New("apiclient: conflict")
	ErrThrottled    = errors.New("apiclient: throttled")
	ErrServerError  = errors.New("apiclient: server error")
)

// HTTPError is returned for non-2xx responses. Message is the server's
// "message" field when the error body carried one, otherwise a generic
// status-coded text.
type HTTPError struct {
	StatusCode int
	Message    string
	RequestID  string
	Body       []byte
	Err        error // sentinel, for errors.Is()
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// genericStatusMessage is used when the error body has no usable message.
func genericStatusMessage(code int) string {
	return fmt.Sprintf("HTTP error! status: %d", code)
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// StatusCode extracts the HTTP status from err, or 0 when err did not come
// from an HTTP response.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	return 0
}
