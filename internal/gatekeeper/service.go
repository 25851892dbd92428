package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"palisade/internal/gatekeeper/metrics"
	"palisade/internal/ratelimit"
	"palisade/internal/registry"
)

// Registry is the read side the gatekeeper needs from the identity registry.
type Registry interface {
	Snapshot() *registry.Snapshot
}

// Service runs the admission cascades. Decisions are pure with respect to
// their inputs except for the rate-limit step, which records the request
// timestamp when it reaches that check.
type Service struct {
	registry Registry
	windows  ratelimit.WindowStore
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// cfg is swapped wholesale on hot reload; every decision loads it once.
	cfg atomic.Pointer[Config]
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

func New(reg Registry, windows ratelimit.WindowStore, cfg *Config, opts ...Option) (*Service, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if windows == nil {
		return nil, errors.New("window store is required")
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	svc := &Service{
		registry: reg,
		windows:  windows,
		logger:   slog.Default(),
	}
	svc.cfg.Store(cfg)

	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// UpdateConfig swaps in a new admission configuration between decisions.
func (s *Service) UpdateConfig(cfg *Config) {
	s.cfg.Store(cfg)
	s.logger.Info("gatekeeper config reloaded",
		"restricted", cfg.Restricted,
		"protocol_version", cfg.ProtocolVersion,
		"blacklisted", len(cfg.Blacklist),
		"whitelisted", len(cfg.Whitelist),
	)
}

// Config returns the currently active admission configuration.
func (s *Service) Config() *Config {
	return s.cfg.Load()
}

// DecideDiscovery runs the discovery cascade: base checks, registration
// consistency, stake floor, then the rate limiter. The request timestamp is
// only recorded when every earlier check passed.
func (s *Service) DecideDiscovery(ctx context.Context, req RequestContext) Decision {
	start := time.Now()
	cfg := s.cfg.Load()

	decision := discoveryDecision(req, cfg, s.registry.Snapshot())
	if decision.Allow {
		decision = s.checkRate(ctx, req, cfg)
	}

	s.observe(ctx, "discovery", req, decision, start)
	return decision
}

// DecideQuery runs the data-query cascade: base checks, network match,
// model-type match, payload safety.
func (s *Service) DecideQuery(ctx context.Context, req RequestContext) Decision {
	start := time.Now()
	cfg := s.cfg.Load()

	decision := queryDecision(req, cfg, s.registry.Snapshot())

	s.observe(ctx, "query", req, decision, start)
	return decision
}

// checkRate consults the sliding window limiter. Limiter store failures fail
// open: a broken Redis must not take the serving path down with it.
func (s *Service) checkRate(ctx context.Context, req RequestContext, cfg *Config) Decision {
	result, err := s.windows.Reserve(ctx, req.Identity.String(), cfg.MaxRequestsPerWindow, cfg.RateWindow)
	if err != nil {
		s.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
			"identity", req.Identity,
			"error", err,
		)
		return allow(ReasonRecognized)
	}
	if !result.Allowed {
		s.metrics.IncrementRateLimited()
		return deny(fmt.Sprintf("Request rate exceeded for %s", req.Identity))
	}
	return allow(ReasonRecognized)
}

// observe logs the decision and updates metrics. Denials are informational,
// never errors: an admission denial is an expected outcome.
func (s *Service) observe(ctx context.Context, kind string, req RequestContext, decision Decision, start time.Time) {
	s.metrics.IncrementDecision(kind, decision.Allow)
	s.metrics.ObserveDecideLatency(time.Since(start))

	s.logger.InfoContext(ctx, "admission decision",
		"kind", kind,
		"identity", req.Identity,
		"allow", decision.Allow,
		"reason", decision.Reason,
	)
}
