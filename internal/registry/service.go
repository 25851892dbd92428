package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Service holds the current registry snapshot and refreshes it from the
// membership collaborator. Reads are lock-free for callers: they receive an
// immutable *Snapshot and can use it for the whole decision.
type Service struct {
	client MembershipClient
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(client MembershipClient, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("membership client is required")
	}
	svc := &Service{
		client:   client,
		logger:   slog.Default(),
		snapshot: NewSnapshot(nil),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Snapshot returns the current immutable registry view.
func (s *Service) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Refresh fetches the participant set once and swaps in a fresh snapshot.
func (s *Service) Refresh(ctx context.Context) error {
	participants, err := s.client.FetchParticipants(ctx)
	if err != nil {
		return fmt.Errorf("fetch participants: %w", err)
	}

	snap := NewSnapshot(participants)
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "registry refreshed", "participants", snap.Count())
	return nil
}

// Run refreshes the snapshot on the given interval until ctx is cancelled.
// A failed refresh keeps the previous snapshot; the registry view may go
// stale but never empty out mid-flight.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.ErrorContext(ctx, "initial registry refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.ErrorContext(ctx, "registry refresh failed", "error", err)
			}
		}
	}
}
