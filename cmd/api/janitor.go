package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const janitorInterval = time.Hour

// startHistoryJanitor purges expired history rows in the background. Expired
// rows are already invisible to reads; this reclaims the storage.
func startHistoryJanitor(ctx context.Context, history domain.HistoryRepository, logger zerolog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := history.DeleteExpired(ctx)
				if err != nil {
					logger.Error().Err(err).Msg("history cleanup failed")
					continue
				}
				if n > 0 {
					logger.Info().Int64("deleted", n).Msg("expired history purged")
				}
			}
		}
	}()
	return cancel
}
