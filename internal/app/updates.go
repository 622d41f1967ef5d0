package app

import (
	"context"
	"log/slog"
	"time"
)

// Updater runs one index rebuild cycle.
type Updater interface {
	UpdateIndex(ctx context.Context) error
}

// RunUpdateLoop runs an update at start (if onStart is set) and then every
// interval until ctx is done. A zero interval disables periodic updates.
// Cycle errors are logged and do not stop the loop.
func RunUpdateLoop(ctx context.Context, updater Updater, interval time.Duration, onStart bool, logger *slog.Logger) {
	run := func() {
		if err := updater.UpdateIndex(ctx); err != nil {
			logger.Error("Index update failed", "error", err)
		}
	}

	if onStart {
		run()
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
