// Package dropzone uploads batches of images and watches a drop folder for
// new ones.
package dropzone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/joy-dx/lockablemap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/datasync-go/internal/apiclient"
	"github.com/tonimelisma/datasync-go/internal/ledger"
)

// DefaultParallel is the number of concurrent uploads when none is set.
const DefaultParallel = 4

// State is the lifecycle position of one file in a batch.
type State string

// File states.
const (
	StateUploading State = "uploading"
	StateSuccess   State = "success"
	StateSkipped   State = "skipped"
	StateError     State = "error"
)

// ErrDuplicate marks a file skipped because its content was already uploaded
// to the same target.
var ErrDuplicate = errors.New("dropzone: already uploaded")

// ImageUploader sends one file. dashboard.Service satisfies it.
type ImageUploader interface {
	UploadImage(ctx context.Context, uid, localPath string, onProgress apiclient.ProgressFunc) (*apiclient.UploadResult, error)
	AcceptsFile(name string) bool
}

// History records outcomes and answers duplicate checks. ledger.Store
// satisfies it.
type History interface {
	HasUploaded(ctx context.Context, target, sum string) (bool, error)
	RecordUpload(ctx context.Context, u ledger.Upload) (int64, error)
}

// FileStatus is the current state of one file.
type FileStatus struct {
	Path     string
	Name     string
	State    State
	Progress int
	Err      error
	Response string
}

// Report summarises a finished batch. Files keeps the input order.
type Report struct {
	Succeeded int
	Skipped   int
	Failed    int
	Files     []FileStatus
}

// StatusFunc receives every status change. Calls are serialised.
type StatusFunc func(FileStatus)

// Uploader uploads files to one target user's image collection.
type Uploader struct {
	api            ImageUploader
	target         string
	logger         *slog.Logger
	history        History
	parallel       int
	skipDuplicates bool
	onStatus       StatusFunc

	cbMu   sync.Mutex
	status *lockablemap.LockableMap[string, FileStatus]

	hashFunc func(path string) (string, int64, error)
	nowFunc  func() time.Time
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithParallel bounds concurrent uploads. Values below 1 are ignored.
func WithParallel(n int) Option {
	return func(u *Uploader) {
		if n >= 1 {
			u.parallel = n
		}
	}
}

// WithHistory records every outcome in h.
func WithHistory(h History) Option {
	return func(u *Uploader) {
		u.history = h
	}
}

// WithSkipDuplicates skips files whose content already reached the target.
// It needs a History.
func WithSkipDuplicates(skip bool) Option {
	return func(u *Uploader) {
		u.skipDuplicates = skip
	}
}

// WithStatusFunc installs a status callback.
func WithStatusFunc(fn StatusFunc) Option {
	return func(u *Uploader) {
		u.onStatus = fn
	}
}

// NewUploader creates an Uploader sending to target's collection.
func NewUploader(api ImageUploader, target string, logger *slog.Logger, opts ...Option) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	u := &Uploader{
		api:      api,
		target:   target,
		logger:   logger,
		parallel: DefaultParallel,
		status:   lockablemap.NewLockableMap[string, FileStatus](),
		hashFunc: ledger.HashFile,
		nowFunc:  time.Now,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// AcceptsFile reports whether name would be accepted for upload.
func (u *Uploader) AcceptsFile(name string) bool {
	return u.api.AcceptsFile(name)
}

// Status returns a snapshot of every file seen by this Uploader, keyed by
// normalised path.
func (u *Uploader) Status() map[string]FileStatus {
	return u.status.GetAll()
}

// UploadAll uploads paths with bounded concurrency. A failing file does not
// stop the others; its error is kept in the report. The returned error is
// non-nil only when ctx ends before the batch finishes.
func (u *Uploader) UploadAll(ctx context.Context, paths []string) (*Report, error) {
	files := dedupePaths(paths)
	results := make([]FileStatus, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.parallel)

	for i, p := range files {
		g.Go(func() error {
			results[i] = u.uploadOne(gctx, p)
			return nil
		})
	}

	_ = g.Wait() // workers never return errors

	report := &Report{Files: results}

	for _, r := range results {
		switch r.State {
		case StateSuccess:
			report.Succeeded++
		case StateSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	u.logger.Info("upload batch finished",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("dropzone: upload batch interrupted: %w", err)
	}

	return report, nil
}

func (u *Uploader) uploadOne(ctx context.Context, path string) FileStatus {
	st := FileStatus{Path: path, Name: norm.NFC.String(filepath.Base(path)), State: StateUploading}
	started := u.nowFunc()

	if err := ctx.Err(); err != nil {
		st.State, st.Err = StateError, err
		u.publish(st)

		return st
	}

	u.publish(st)

	var (
		sum  string
		size int64
	)

	if u.history != nil {
		var err error

		sum, size, err = u.hashFunc(path)
		if err != nil {
			return u.finish(ctx, st, started, sum, size, "", err)
		}

		if u.skipDuplicates {
			dup, err := u.history.HasUploaded(ctx, u.target, sum)
			if err != nil {
				u.logger.Warn("duplicate check failed", slog.String("path", path), slog.String("error", err.Error()))
			} else if dup {
				return u.finish(ctx, st, started, sum, size, "", ErrDuplicate)
			}
		}
	}

	res, err := u.api.UploadImage(ctx, u.target, path, func(pct int) {
		st.Progress = pct
		u.publish(st)
	})

	body := ""
	if res != nil {
		body = res.Text()
	}

	return u.finish(ctx, st, started, sum, size, body, err)
}

// finish sets the terminal state, publishes it and records it in history.
func (u *Uploader) finish(
	ctx context.Context, st FileStatus, started time.Time, sum string, size int64, body string, err error,
) FileStatus {
	row := ledger.Upload{
		Target:     u.target,
		FileName:   st.Name,
		LocalPath:  st.Path,
		SHA256:     sum,
		Size:       size,
		Response:   body,
		StartedAt:  started,
		FinishedAt: u.nowFunc(),
	}

	switch {
	case errors.Is(err, ErrDuplicate):
		st.State, st.Err = StateSkipped, err
		row.Status = ledger.StatusSkipped
		u.logger.Info("skipping duplicate", slog.String("name", st.Name))
	case err != nil:
		st.State, st.Err = StateError, err
		row.Status, row.Error = ledger.StatusError, err.Error()
		u.logger.Warn("upload failed", slog.String("name", st.Name), slog.String("error", err.Error()))
	default:
		st.State, st.Progress, st.Response = StateSuccess, 100, body
		row.Status = ledger.StatusSuccess
	}

	u.publish(st)

	if u.history != nil {
		// Record even when the batch was canceled.
		if _, herr := u.history.RecordUpload(context.WithoutCancel(ctx), row); herr != nil {
			u.logger.Warn("recording upload failed", slog.String("name", st.Name), slog.String("error", herr.Error()))
		}
	}

	return st
}

func (u *Uploader) publish(st FileStatus) {
	u.status.Set(norm.NFC.String(st.Path), st)

	if u.onStatus == nil {
		return
	}

	u.cbMu.Lock()
	defer u.cbMu.Unlock()

	u.onStatus(st)
}

// dedupePaths cleans paths and drops repeats, comparing NFC forms so that
// both normalisations of a name count once. The first spelling is kept for
// opening the file.
func dedupePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))

	for _, p := range paths {
		p = filepath.Clean(p)

		key := norm.NFC.String(p)
		if seen[key] {
			continue
		}

		seen[key] = true
		out = append(out, p)
	}

	return out
}
