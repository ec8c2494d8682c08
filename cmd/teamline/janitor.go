package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/teamline/teamline/internal/port/database"
	"github.com/teamline/teamline/internal/service"
)

const (
	repairInterval = 5 * time.Minute
	purgeInterval  = time.Hour
	// eventRetention bounds how long processed webhook event ids are kept
	// for duplicate detection. Stripe retries deliveries for up to 3 days,
	// so 30 days leaves ample margin.
	eventRetention = 30 * 24 * time.Hour
)

// runJanitor periodically retries tenants stuck in sync_pending and purges
// expired refresh tokens and old webhook event records. Returns when ctx is
// canceled.
func runJanitor(ctx context.Context, store database.Store, reconciler *service.ReconcilerService, log *slog.Logger) {
	repair := time.NewTicker(repairInterval)
	defer repair.Stop()
	purge := time.NewTicker(purgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-repair.C:
			if err := reconciler.RepairPending(ctx); err != nil {
				log.Error("pending sync repair failed", "error", err)
			}
		case <-purge.C:
			now := time.Now().UTC()
			if n, err := store.DeleteExpiredRefreshTokens(ctx, now); err != nil {
				log.Error("refresh token purge failed", "error", err)
			} else if n > 0 {
				log.Info("expired refresh tokens purged", "count", n)
			}
			if n, err := store.PurgeEventsBefore(ctx, now.Add(-eventRetention)); err != nil {
				log.Error("webhook event purge failed", "error", err)
			} else if n > 0 {
				log.Info("old webhook events purged", "count", n)
			}
		}
	}
}
