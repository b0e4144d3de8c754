package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/store"
)

const sweepInterval = 10 * time.Minute

// StartStaleSweeper runs a background goroutine that periodically
// force-closes open sessions older than the stale window, catching
// sessions that were abandoned without an explicit end.
func StartStaleSweeper(ctx context.Context, repo store.Repository, staleAfter time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("stale session sweeper started", "interval", sweepInterval, "stale_after", staleAfter)

		for {
			select {
			case <-ctx.Done():
				slog.Info("stale session sweeper stopped")
				return
			case <-ticker.C:
				sweepOnce(ctx, repo, staleAfter)
			}
		}
	}()
}

func sweepOnce(ctx context.Context, repo store.Repository, staleAfter time.Duration) {
	now := time.Now()
	stale, err := repo.OpenSessionsStartedBefore(ctx, now.Add(-staleAfter))
	if err != nil {
		slog.Error("stale session sweep query failed", "error", err)
		return
	}

	for _, sess := range stale {
		if err := repo.CloseSession(ctx, sess.ID, now); err != nil {
			// A racing explicit end can close it first.
			if domain.IsConflict(err) {
				continue
			}
			slog.Warn("failed to close stale session", "session_id", sess.ID, "error", err)
			continue
		}
		slog.Info("closed stale session", "session_id", sess.ID, "user_id", sess.UserID, "started", sess.StartTime)
	}
}
