package verification

import (
	"context"
	"log/slog"
	"time"
)

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, store *Store, interval time.Duration, logger *slog.Logger) {
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
			sweepOnce(ctx, store, logger)
		}
	}
}

func sweepOnce(ctx context.Context, store *Store, logger *slog.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := store.SweepExpired(sweepCtx)
	if err != nil {
		logger.Error("sweep expired credentials", slog.Any("error", err))
		return
	}
	if res.VerificationTokens > 0 || res.RefreshCredentials > 0 {
		logger.Info("swept expired credentials",
			slog.Int("verification_tokens", res.VerificationTokens),
			slog.Int("refresh_tokens", res.RefreshCredentials),
		)
	}
}
