package weights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	id "palisade/pkg/domain"
)

// ConsensusClient is the external consensus collaborator that accepts a
// published weight vector.
type ConsensusClient interface {
	SubmitWeights(ctx context.Context, vector Vector) error
}

// Publisher computes and submits weight vectors. Submission runs behind a
// circuit breaker: a flapping consensus endpoint trips the breaker and the
// coordinator simply skips cycles until it half-opens again.
type Publisher struct {
	client  ConsensusClient
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	budget  uint64
	cap     float64
}

type PublisherOption func(*Publisher)

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher constructs a publisher for the given quantization budget and
// optional per-identity cap (0 disables the cap).
func NewPublisher(client ConsensusClient, budget uint64, cap float64, opts ...PublisherOption) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("consensus client is required")
	}
	if budget == 0 {
		return nil, errors.New("weight budget must be positive")
	}

	p := &Publisher{
		client: client,
		logger: slog.Default(),
		budget: budget,
		cap:    cap,
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "consensus-submit",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("consensus breaker state change", "from", from.String(), "to", to.String())
		},
	})

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish computes the weight vector for scores and submits it. A failed
// submission is logged and reported; the caller retries on its next cycle
// with recomputed scores. Calling Publish twice with unchanged scores submits
// the same vector.
func (p *Publisher) Publish(ctx context.Context, scores map[id.Identity]float64) (Vector, error) {
	vector := Compute(scores, p.budget, p.cap)

	p.logTopWeights(ctx, vector, scores)

	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.client.SubmitWeights(ctx, vector)
	})
	if err != nil {
		return vector, fmt.Errorf("submit weights: %w", err)
	}

	p.logger.InfoContext(ctx, "weights published",
		"identities", len(vector),
		"total_weight", vector.Sum(),
	)
	return vector, nil
}

// logTopWeights logs the heaviest entries at debug level, the operator's view
// of who currently carries trust.
func (p *Publisher) logTopWeights(ctx context.Context, vector Vector, scores map[id.Identity]float64) {
	if len(vector) == 0 {
		return
	}

	sorted := make(Vector, len(vector))
	copy(sorted, vector)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })

	const topN = 10
	top := sorted
	if len(top) > topN {
		top = top[:topN]
	}
	for _, e := range top {
		p.logger.DebugContext(ctx, "weight",
			"identity", e.Identity,
			"weight", e.Weight,
			"score", scores[e.Identity],
		)
	}
}
