package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Retry schedule for stores that come up after the server, as in a fresh
// docker compose stack.
var (
	waitAttempts = 5
	waitBackoff  = 500 * time.Millisecond
)

// waitFor calls ping until it succeeds, doubling the pause between tries.
// It returns the last error once the attempts run out or ctx is done.
func waitFor(ctx context.Context, log zerolog.Logger, ping func(context.Context) error) error {
	backoff := waitBackoff
	var err error
	for attempt := 1; attempt <= waitAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == waitAttempts {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", backoff).Msg("Store not ready")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
