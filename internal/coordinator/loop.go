package coordinator

import (
	"context"
	"log/slog"
	"time"

	"palisade/internal/coordinator/metrics"
	"palisade/internal/reputation"
	"palisade/internal/weights"
	id "palisade/pkg/domain"
)

// SnapshotStore persists the score vector between restarts. Optional; the
// ledger itself is in-memory state rebuilt from zero when no store is wired.
type SnapshotStore interface {
	Save(ctx context.Context, scores map[id.Identity]float64) error
	Load(ctx context.Context) (map[id.Identity]float64, error)
}

// PublishLoop periodically converts ledger scores into a weight vector and
// submits it. A failed publication is logged and the cycle skipped; the next
// tick retries with recomputed scores. Never fatal.
type PublishLoop struct {
	ledger    *reputation.Ledger
	publisher *weights.Publisher
	snapshots SnapshotStore
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewPublishLoop wires the publication cycle. snapshots and m may be nil.
func NewPublishLoop(ledger *reputation.Ledger, publisher *weights.Publisher, snapshots SnapshotStore, logger *slog.Logger, m *metrics.Metrics) *PublishLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishLoop{
		ledger:    ledger,
		publisher: publisher,
		snapshots: snapshots,
		logger:    logger,
		metrics:   m,
	}
}

// Restore loads persisted scores into the ledger, when a snapshot store is
// wired. Missing or failed snapshots are logged and ignored: the ledger
// starts from zero.
func (pl *PublishLoop) Restore(ctx context.Context) {
	if pl.snapshots == nil {
		return
	}
	scores, err := pl.snapshots.Load(ctx)
	if err != nil {
		pl.logger.WarnContext(ctx, "score snapshot restore failed, starting from zero", "error", err)
		return
	}
	if len(scores) > 0 {
		pl.ledger.Restore(scores)
		pl.logger.InfoContext(ctx, "score snapshot restored", "identities", len(scores))
	}
}

// Run publishes on the given interval until ctx is cancelled.
func (pl *PublishLoop) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pl.publishOnce(ctx)
		}
	}
}

func (pl *PublishLoop) publishOnce(ctx context.Context) {
	scores := pl.ledger.Scores()

	if _, err := pl.publisher.Publish(ctx, scores); err != nil {
		pl.metrics.IncrementPublishFailure()
		pl.logger.ErrorContext(ctx, "weight publication failed, skipping cycle", "error", err)
		return
	}

	if pl.snapshots != nil {
		if err := pl.snapshots.Save(ctx, scores); err != nil {
			pl.logger.WarnContext(ctx, "score snapshot save failed", "error", err)
		}
	}
}
