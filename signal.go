package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext implements spec.md §4.H's "on SIGINT/SIGTERM ... set a
// shutdown flag; the current cycle finishes its current photo, flushes
// Tracker, releases the lock, and exits 0." Cancelling the returned
// context is that shutdown flag: Scheduler/Engine poll ctx.Err() at the
// per-photo and per-album checkpoints (syncengine.ShutdownSignal), finish
// whatever is in flight, and unwind normally so the deferred Tracker
// close and InstanceLock release in sync.go still run. A second signal
// means the operator has already waited past one photo's worth of
// patience, so this exits immediately with the interrupted code instead
// of waiting for the cycle to notice the cancellation.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("sync: shutdown signal received, finishing current photo before exit",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		// A second signal means the cooperative checkpoint hasn't been
		// reached yet (e.g. a download is still in flight); the
		// operator wants out now rather than waiting for it.
		select {
		case sig := <-sigCh:
			logger.Warn("sync: second shutdown signal received, exiting without finishing the cycle",
				slog.String("signal", sig.String()),
			)
			os.Exit(exitInterrupted)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
