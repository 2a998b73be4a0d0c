package revocation

import (
	"context"
	"log/slog"
	"time"
)

// RunSweeper calls cache.Sweep every interval until ctx is cancelled. Sweep
// errors are logged and the loop continues.
func RunSweeper(ctx context.Context, cache Cache, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := cache.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.ErrorContext(ctx, "revocation sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.DebugContext(ctx, "revocation sweep", "removed", removed)
			}
		}
	}
}
