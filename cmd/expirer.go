package main

import (
	"context"
	"log"
	"time"

	"rpchubBack/internal/repositories"
)

const expirerTimeout = 1 * time.Minute

// startExpirer periodically closes out stale state: pending payments whose
// checkout window ran out, and active subscriptions whose paid period ended.
func startExpirer(ctx context.Context, payments *repositories.PaymentRepository, subs *repositories.SubscriptionRepository, infoLog, errorLog *log.Logger) {
	if payments == nil || subs == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		runOnce := func() {
			runCtx, cancel := context.WithTimeout(ctx, expirerTimeout)
			defer cancel()

			now := time.Now().UTC()
			expired, err := payments.ExpireStale(runCtx, now)
			if err != nil {
				errorLog.Printf("expirer: failed to expire stale payments: %v", err)
			} else if expired > 0 {
				infoLog.Printf("expirer: expired %d stale payments", expired)
			}

			lapsed, err := subs.ExpireLapsed(runCtx, now)
			if err != nil {
				errorLog.Printf("expirer: failed to expire lapsed subscriptions: %v", err)
			} else if lapsed > 0 {
				infoLog.Printf("expirer: downgraded %d lapsed subscriptions", lapsed)
			}
		}

		runOnce()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()
}
