package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// shutdownContext derives a context that is canceled by the first SIGINT or
// SIGTERM. A second signal exits immediately with status 1. The returned stop
// function releases the signal handler and must be called when the command
// is done.
func shutdownContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan struct{})

	var once sync.Once

	stop := func() {
		once.Do(func() { close(stopped) })
		cancel()
	}

	go func() {
		defer signal.Stop(sigCh)

		for received := 0; ; {
			select {
			case sig := <-sigCh:
				received++

				if received == 1 {
					logger.Info("stopping, press Ctrl-C again to force",
						slog.String("signal", sig.String()))
					cancel()

					continue
				}

				logger.Warn("forced exit", slog.String("signal", sig.String()))
				exitFunc(1)

				return
			case <-stopped:
				return
			case <-parent.Done():
				return
			}
		}
	}()

	return ctx, stop
}
