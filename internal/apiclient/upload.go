package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// uploadFieldName is the multipart form field carrying the payload.
const uploadFieldName = "file"

// progressBuffer sizes the channel between the transport goroutine and the
// caller. Progress values only change 101 times, so this never fills up
// unless the caller's callback stalls.
const progressBuffer = 128

// ProgressFunc receives upload progress as a whole percentage in [0, 100].
type ProgressFunc func(percent int)

// File is the binary payload of an upload. A negative Size means unknown;
// the content is then buffered in memory to learn it.
type File struct {
	Name        string
	Content     io.Reader
	Size        int64
	ContentType string
}

// UploadResult is the server's answer to a successful upload. Value holds
// the decoded JSON body, or the body as a string when it is not JSON.
type UploadResult struct {
	StatusCode int
	Body       []byte
	Value      any
}

// Decode unmarshals the JSON response body into out.
func (r *UploadResult) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return nil
}

// Text returns the raw response body.
func (r *UploadResult) Text() string {
	return string(r.Body)
}

// UploadFile POSTs file as multipart form data to path. onProgress (may be
// nil) is always invoked on the calling goroutine, with non-decreasing
// values, ending at 100 on success.
//
// Unlike Do, UploadFile does not refresh and retry on 401.
func (c *Client) UploadFile(ctx context.Context, path string, file File, onProgress ProgressFunc) (*UploadResult, error) {
	c.logger.Info("uploading file",
		slog.String("path", path),
		slog.String("name", file.Name),
		slog.Int64("size", file.Size),
	)

	tok, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	body, contentType, total, err := buildMultipart(file)
	if err != nil {
		return nil, err
	}

	tracker := newProgressTracker(onProgress)
	events := make(chan int, progressBuffer)
	done := make(chan struct{})

	pr := &progressReader{reader: body, total: total, events: events, done: done}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return nil, fmt.Errorf("apiclient: creating upload request: %w", err)
	}

	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(headerRequestID, c.newRequestID())

	type outcome struct {
		resp *http.Response
		err  error
	}

	result := make(chan outcome, 1)

	go func() {
		resp, doErr := c.uploadClient.Do(req) //nolint:bodyclose // closed by the receiving side
		result <- outcome{resp: resp, err: doErr}
	}()

	var out outcome

wait:
	for {
		select {
		case pct := <-events:
			tracker.report(pct)
		case out = <-result:
			break wait
		}
	}

	close(done)

	// Deliver whatever the transport reported before the response arrived.
	for drained := false; !drained; {
		select {
		case pct := <-events:
			tracker.report(pct)
		default:
			drained = true
		}
	}

	if out.err != nil {
		c.logger.Error("upload transport failed",
			slog.String("path", path),
			slog.String("name", file.Name),
			slog.String("error", out.err.Error()),
		)

		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, out.err)
	}
	defer out.resp.Body.Close()

	respBody, err := io.ReadAll(out.resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUploadFailed, err)
	}

	if out.resp.StatusCode < http.StatusOK || out.resp.StatusCode >= http.StatusMultipleChoices {
		httpErr := &HTTPError{
			StatusCode: out.resp.StatusCode,
			Message:    fmt.Sprintf("Upload failed with status %d", out.resp.StatusCode),
			RequestID:  out.resp.Header.Get(headerRequestID),
			Body:       respBody,
			Err:        classifyStatus(out.resp.StatusCode),
		}

		c.logger.Error("upload rejected",
			slog.String("path", path),
			slog.String("name", file.Name),
			slog.Int("status", httpErr.StatusCode),
		)

		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, httpErr)
	}

	tracker.complete()

	c.logger.Info("upload complete",
		slog.String("path", path),
		slog.String("name", file.Name),
		slog.Int("status", out.resp.StatusCode),
	)

	return &UploadResult{
		StatusCode: out.resp.StatusCode,
		Body:       respBody,
		Value:      decodeLoose(respBody),
	}, nil
}

// decodeLoose returns the decoded JSON value of data, or data as a string
// when it is not valid JSON.
func decodeLoose(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}

	return v
}

// buildMultipart lays out the multipart body as prefix + content + suffix so
// the exact Content-Length is known before any byte is sent.
func buildMultipart(file File) (io.Reader, string, int64, error) {
	content := file.Content
	if content == nil {
		content = bytes.NewReader(nil)
	}

	size := file.Size
	if size < 0 {
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, "", 0, fmt.Errorf("apiclient: reading upload content: %w", err)
		}

		content = bytes.NewReader(data)
		size = int64(len(data))
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		uploadFieldName, escapeQuotes(file.Name)))
	hdr.Set("Content-Type", contentType)

	if _, err := mw.CreatePart(hdr); err != nil {
		return nil, "", 0, fmt.Errorf("apiclient: building multipart header: %w", err)
	}

	prefix := bytes.Clone(buf.Bytes())
	buf.Reset()

	if err := mw.Close(); err != nil {
		return nil, "", 0, fmt.Errorf("apiclient: building multipart trailer: %w", err)
	}

	suffix := bytes.Clone(buf.Bytes())

	body := io.MultiReader(
		bytes.NewReader(prefix),
		&exactReader{r: content, size: size, remaining: size},
		bytes.NewReader(suffix),
	)

	total := int64(len(prefix)) + size + int64(len(suffix))

	return body, mw.FormDataContentType(), total, nil
}

// exactReader yields exactly size bytes of r and fails when r holds fewer or
// more. Content changing between Stat and send must not upload a truncated
// file as a success.
type exactReader struct {
	r         io.Reader
	size      int64
	remaining int64
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.remaining == 0 {
		var extra [1]byte

		n, err := io.ReadFull(e.r, extra[:])
		if n > 0 {
			return 0, fmt.Errorf("%w: content exceeds %d bytes", ErrSizeMismatch, e.size)
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, io.EOF
		}

		return 0, err
	}

	if int64(len(p)) > e.remaining {
		p = p[:e.remaining]
	}

	n, err := e.r.Read(p)
	e.remaining -= int64(n)

	if err == io.EOF {
		if e.remaining > 0 {
			return n, fmt.Errorf("%w: content ended after %d of %d bytes",
				ErrSizeMismatch, e.size-e.remaining, e.size)
		}

		err = nil
	}

	return n, err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader counts bytes as the transport reads the body and publishes
// percentage changes. It runs on the transport's goroutine, so it never
// calls user code directly.
type progressReader struct {
	reader  io.Reader
	total   int64
	sent    int64
	last    int
	atEOF   bool
	events  chan<- int
	done    <-chan struct{}
	started bool
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.sent += int64(n)

		if pct := percentOf(pr.sent, pr.total); pct != pr.last || !pr.started {
			pr.started = true
			pr.last = pct
			pr.publish(pct)
		}
	}

	// The whole body has been handed to the transport: the upload portion is
	// complete even if rounding left the last event short of 100.
	if err == io.EOF && !pr.atEOF {
		pr.atEOF = true
		pr.publish(100)
	}

	return n, err
}

func (pr *progressReader) publish(pct int) {
	select {
	case pr.events <- pct:
	case <-pr.done:
	}
}

// percentOf returns round(sent/total*100), clamped to [0, 100].
func percentOf(sent, total int64) int {
	if total <= 0 {
		return 0
	}

	pct := int(math.Round(float64(sent) / float64(total) * 100))

	return max(0, min(100, pct))
}

// progressTracker forwards progress to the caller's callback, dropping any
// value that would move backwards.
type progressTracker struct {
	fn       ProgressFunc
	last     int
	reported bool
}

func newProgressTracker(fn ProgressFunc) *progressTracker {
	return &progressTracker{fn: fn}
}

func (t *progressTracker) report(pct int) {
	if t.fn == nil {
		return
	}

	if t.reported && pct < t.last {
		return
	}

	t.reported = true
	t.last = pct
	t.fn(pct)
}

// complete guarantees the final reported value is 100.
func (t *progressTracker) complete() {
	if t.reported && t.last == 100 {
		return
	}

	t.report(100)
}
