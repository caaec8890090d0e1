package dashboard

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval matches the dashboards' automatic refresh.
const DefaultPollInterval = 30 * time.Second

// Poll calls fetch once and then every interval, passing each result to
// emit. An initial fetch error is returned; later failures are logged and
// polling continues with the next tick. Poll returns nil when ctx ends.
func Poll[T any](
	ctx context.Context,
	interval time.Duration,
	logger *slog.Logger,
	fetch func(context.Context) (T, error),
	emit func(T),
) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	v, err := fetch(ctx)
	if err != nil {
		return err
	}

	emit(v)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		v, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			logger.Warn("background refresh failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", interval),
			)

			continue
		}

		emit(v)
	}
}
