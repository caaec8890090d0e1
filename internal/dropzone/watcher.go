package dropzone

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// Watcher error backoff. Errors are usually kernel queue overflows, so
// retrying immediately would spin.
const (
	watchErrInitBackoff = time.Second
	watchErrBackoffMult = 2
	watchErrMaxBackoff  = 30 * time.Second

	// DefaultSettleDelay is how long a file must stay quiet before upload.
	DefaultSettleDelay = 2 * time.Second

	queueSize = 64
)

// FsWatcher is the subset of *fsnotify.Watcher the drop folder uses.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWatcher) Add(name string) error          { return f.w.Add(name) }
func (f fsnotifyWatcher) Close() error                   { return f.w.Close() }
func (f fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return fsnotifyWatcher{w: w}, nil
}

// Watcher uploads images that appear in a folder.
type Watcher struct {
	up           *Uploader
	logger       *slog.Logger
	settle       time.Duration
	scanExisting bool
	onBatch      func(*Report)

	watcherFactory func() (FsWatcher, error)
	sleepFunc      func(ctx context.Context, d time.Duration) error
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithSettleDelay sets the quiet period after the last write to a file.
func WithSettleDelay(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.settle = d
		}
	}
}

// WithScanExisting uploads accepted files already in the folder when Run
// starts.
func WithScanExisting(scan bool) WatchOption {
	return func(w *Watcher) {
		w.scanExisting = scan
	}
}

// WithBatchFunc is called after each upload batch.
func WithBatchFunc(fn func(*Report)) WatchOption {
	return func(w *Watcher) {
		w.onBatch = fn
	}
}

// NewWatcher creates a Watcher that hands settled files to up.
func NewWatcher(up *Uploader, logger *slog.Logger, opts ...WatchOption) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		up:             up,
		logger:         logger,
		settle:         DefaultSettleDelay,
		watcherFactory: newFsnotifyWatcher,
		sleepFunc:      timeSleep,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// settled is sent by a settle timer. gen ties it to the event that armed it
// so that a timer superseded by a later write is ignored.
type settled struct {
	path string
	gen  uint64
}

// Run watches dir until ctx ends. Only the folder itself is watched, not
// subdirectories. Run returns once in-flight uploads have stopped.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("dropzone: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("dropzone: %s is not a directory", dir)
	}

	fw, err := w.watcherFactory()
	if err != nil {
		return fmt.Errorf("dropzone: creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("dropzone: watching %s: %w", dir, err)
	}

	w.logger.Info("watching drop folder",
		slog.String("dir", dir),
		slog.Duration("settle_delay", w.settle),
	)

	queue := make(chan string, queueSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)

		if w.scanExisting {
			if err := w.enqueueExisting(gctx, dir, queue); err != nil {
				return err
			}
		}

		return w.watchLoop(gctx, fw, queue)
	})

	g.Go(func() error {
		w.uploadLoop(gctx, queue)
		return nil
	})

	return g.Wait()
}

func (w *Watcher) enqueueExisting(ctx context.Context, dir string, queue chan<- string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("dropzone: reading %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !w.up.AcceptsFile(e.Name()) {
			continue
		}

		select {
		case queue <- filepath.Join(dir, e.Name()):
		case <-ctx.Done():
			return nil
		}
	}

	return nil
}

// watchLoop turns fsnotify events into settled paths on queue.
func (w *Watcher) watchLoop(ctx context.Context, fw FsWatcher, queue chan<- string) error {
	var (
		gen     uint64
		pending = make(map[string]uint64)
		timers  = make(map[string]*time.Timer)
		ready   = make(chan settled)
	)

	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	arm := func(path string) {
		gen++
		pending[path] = gen

		if t, ok := timers[path]; ok {
			t.Stop()
		}

		item := settled{path: path, gen: gen}
		timers[path] = time.AfterFunc(w.settle, func() {
			select {
			case ready <- item:
			case <-ctx.Done():
			}
		})
	}

	disarm := func(path string) {
		if t, ok := timers[path]; ok {
			t.Stop()
		}

		delete(timers, path)
		delete(pending, path)
	}

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}

			errBackoff = watchErrInitBackoff

			switch {
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				disarm(ev.Name)
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				if w.wantsPath(ev.Name) {
					w.logger.Debug("drop folder change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
					arm(ev.Name)
				}
			}

		case item := <-ready:
			if pending[item.path] != item.gen {
				continue
			}

			disarm(item.path)

			select {
			case queue <- item.path:
			case <-ctx.Done():
				return nil
			}

		case watchErr, ok := <-fw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if err := w.sleepFunc(ctx, errBackoff); err != nil {
				return nil
			}

			errBackoff = min(errBackoff*watchErrBackoffMult, watchErrMaxBackoff)
		}
	}
}

func (w *Watcher) wantsPath(path string) bool {
	if !w.up.AcceptsFile(filepath.Base(path)) {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// uploadLoop drains queue, uploading whatever is ready as one batch.
func (w *Watcher) uploadLoop(ctx context.Context, queue <-chan string) {
	for path := range queue {
		if ctx.Err() != nil {
			continue
		}

		batch := []string{path}

	drain:
		for {
			select {
			case p, ok := <-queue:
				if !ok {
					break drain
				}

				batch = append(batch, p)
			default:
				break drain
			}
		}

		report, err := w.up.UploadAll(ctx, batch)
		if err != nil {
			w.logger.Debug("drop folder batch interrupted", slog.String("error", err.Error()))
		}

		if w.onBatch != nil && report != nil {
			w.onBatch(report)
		}
	}
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
