// Package coordinator orchestrates the routing cycle: select candidates,
// dispatch, convert outcomes into ledger updates, and periodically publish
// weights to the consensus layer.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"palisade/internal/coordinator/metrics"
	"palisade/internal/query"
	"palisade/internal/registry"
	"palisade/internal/reputation"
	"palisade/internal/selector"
	id "palisade/pkg/domain"
	dErrors "palisade/pkg/domain-errors"
	"palisade/pkg/platform/sentinel"
)

// Registry is the read side the coordinator needs from the identity registry.
type Registry interface {
	Snapshot() *registry.Snapshot
}

// Service routes queries to serving nodes and feeds observed outcomes back
// into the reputation ledger. The ledger has a single logical writer: this
// service, one update per completed cycle.
type Service struct {
	registry   Registry
	ledger     *reputation.Ledger
	selector   *selector.Selector
	dispatcher query.Dispatcher
	reward     query.RewardFunc

	dispatchTimeout time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(
	reg Registry,
	ledger *reputation.Ledger,
	sel *selector.Selector,
	dispatcher query.Dispatcher,
	reward query.RewardFunc,
	dispatchTimeout time.Duration,
	opts ...Option,
) (*Service, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if sel == nil {
		return nil, errors.New("selector is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if reward == nil {
		return nil, errors.New("reward function is required")
	}

	svc := &Service{
		registry:        reg,
		ledger:          ledger,
		selector:        sel,
		dispatcher:      dispatcher,
		reward:          reward,
		dispatchTimeout: dispatchTimeout,
		logger:          slog.Default(),
		tracer:          otel.Tracer("palisade/coordinator"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SubmitQuery routes req to the current top candidates, updates the ledger
// from the observed outcomes, and returns one successful response chosen
// uniformly at random.
func (s *Service) SubmitQuery(ctx context.Context, req query.Request) (*query.Response, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "coordinator.SubmitQuery")
	defer span.End()

	snap := s.registry.Snapshot()
	candidates := s.selector.TopK(snap.Identities(), s.ledger.Scores(), s.ledger.Excluded())
	s.metrics.ObserveCandidates(len(candidates))
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	if len(candidates) == 0 {
		return nil, noResponders()
	}

	responses := s.dispatchAll(ctx, snap, candidates, req)

	// Responders whose gatekeeper denied us are taken out of routing for the
	// coming cycles; the ledger bounds and self-heals the exclusion set.
	var denied []id.Identity
	rewards := make(map[id.Identity]float64)
	var successful []query.Response
	for _, resp := range responses {
		s.metrics.IncrementResponse(string(resp.Failure))

		if resp.Failure == query.FailureDenied {
			denied = append(denied, resp.Identity)
			continue
		}
		if reward, ok := s.reward(resp); ok {
			rewards[resp.Identity] = reward
		}
		if resp.OK() {
			successful = append(successful, resp)
		}
	}

	if len(denied) > 0 {
		s.ledger.MarkExcluded(denied, snap.Count())
	}

	if len(rewards) > 0 {
		s.ledger.Update(rewards)
	} else {
		s.logger.InfoContext(ctx, "skipping ledger update, no rewardable responses")
	}

	if len(successful) == 0 {
		return nil, noResponders()
	}

	chosen := successful[s.selector.PickOne(len(successful))]
	s.metrics.ObserveQueryLatency(time.Since(start))

	s.logger.InfoContext(ctx, "query routed",
		"candidates", len(candidates),
		"responses", len(responses),
		"successful", len(successful),
		"chosen", chosen.Identity,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &chosen, nil
}

// SubmitVariant routes req to a single named identity, bypassing selection.
// The ledger is not updated: variants are a retry mechanism, not a probe.
func (s *Service) SubmitVariant(ctx context.Context, target id.Identity, req query.Request) (*query.Response, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.SubmitVariant")
	defer span.End()

	snap := s.registry.Snapshot()
	if !snap.Contains(target) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown identity: %s", target)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	resp, err := s.dispatcher.Dispatch(dispatchCtx, snap.EndpointOf(target), target, req)
	if err != nil || !resp.OK() {
		return nil, noResponders()
	}
	return &resp, nil
}

// dispatchAll fans the request out to every candidate with a shared deadline.
// A candidate that errors or times out simply contributes no response; the
// group never aborts early because one node misbehaved.
func (s *Service) dispatchAll(ctx context.Context, snap *registry.Snapshot, candidates []id.Identity, req query.Request) []query.Response {
	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	results := make([]query.Response, len(candidates))
	received := make([]bool, len(candidates))

	for i, identity := range candidates {
		g.Go(func() error {
			resp, err := s.dispatcher.Dispatch(ctx, snap.EndpointOf(identity), identity, req)
			if err != nil {
				s.logger.DebugContext(ctx, "dispatch failed",
					"identity", identity,
					"error", err,
				)
				return nil
			}
			resp.Identity = identity
			results[i] = resp
			received[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]query.Response, 0, len(candidates))
	for i := range results {
		if received[i] {
			out = append(out, results[i])
		}
	}
	return out
}

// noResponders surfaces as a retryable "try again" condition, not a fault.
func noResponders() error {
	return dErrors.Wrap(dErrors.CodeUnavailable,
		"no responses received, please try again", sentinel.ErrNoResponders)
}
