package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/caretrail/journey/pkg/persistence"
)

const DefaultStaleTimeout = 10 * time.Minute

// Sweeper reclaims runs stuck IN_PROGRESS past a staleness window, typically
// after a worker crashed between claiming a run and finishing its
// processing. Recovery is a bulk, lock-free update and is idempotent:
// flipping a run back to WAITING_DELAY twice is harmless.
type Sweeper struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewSweeper(store persistence.Persistence, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		persistence: store,
		logger:      logger.With("module", "recovery_sweeper"),
	}
}

// Recover resets claimed-but-unfinished runs older than the timeout back to
// WAITING_DELAY so a future worker tick picks them up again.
func (s *Sweeper) Recover(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)

	recovered, err := s.persistence.RunRepository().RecoverStale(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to recover stuck runs", "error", err)

		return 0, err
	}

	if recovered > 0 {
		s.logger.WarnContext(ctx, "Recovered stuck journey runs", "count", recovered)
	}

	return recovered, nil
}
