package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	id "palisade/pkg/domain"
)

// PostgresSnapshotStore persists the score vector between restarts. The
// ledger itself is process-lifetime in-memory state; this store is the
// snapshot/restore collaborator a production deployment layers on top.
type PostgresSnapshotStore struct {
	db *sql.DB
}

// NewPostgresSnapshotStore opens a connection pool and verifies it.
func NewPostgresSnapshotStore(url string) (*PostgresSnapshotStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresSnapshotStore{db: db}, nil
}

// Save upserts the full score vector in one transaction.
func (s *PostgresSnapshotStore) Save(ctx context.Context, scores map[id.Identity]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO reputation_scores (identity, score, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (identity)
		DO UPDATE SET score = EXCLUDED.score, updated_at = now()`

	for identity, score := range scores {
		if _, err := tx.ExecContext(ctx, upsert, identity.String(), score); err != nil {
			return fmt.Errorf("upsert score for %s: %w", identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted score vector.
func (s *PostgresSnapshotStore) Load(ctx context.Context) (map[id.Identity]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity, score FROM reputation_scores`)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[id.Identity]float64)
	for rows.Next() {
		var identity string
		var score float64
		if err := rows.Scan(&identity, &score); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		scores[id.Identity(identity)] = score
	}
	return scores, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresSnapshotStore) Close() error {
	return s.db.Close()
}
