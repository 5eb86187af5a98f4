package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher re-reads the current session from the backend.
type Refresher interface {
	Refresh(ctx context.Context)
}

// StartSessionWatch refreshes the session every interval until ctx is done,
// so a token that expires or is revoked while the shell is open drops the
// member back to anonymous.
func StartSessionWatch(ctx context.Context, r Refresher, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Refresh(ctx)
				log.Debug("session refreshed by watch")
			}
		}
	}()
}
