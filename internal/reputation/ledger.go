// Package reputation holds the coordinator's per-identity trust scores and
// the exclusion set. Scores are keyed by identity, never by position, so the
// ledger tolerates registry churn between cycles.
package reputation

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	id "palisade/pkg/domain"
)

// Ledger applies exponential-moving-average updates to per-identity scores
// and maintains the exclusion set. It follows a single-writer discipline: the
// coordinator loop is the only mutator; readers get copied snapshots.
type Ledger struct {
	alpha         float64
	resetFraction float64
	logger        *slog.Logger

	mu       sync.RWMutex
	scores   map[id.Identity]float64
	excluded map[id.Identity]struct{}
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New constructs a ledger. alpha is the EMA smoothing factor in (0,1];
// resetFraction bounds the exclusion set relative to the known identity count.
func New(alpha, resetFraction float64, opts ...Option) (*Ledger, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha must be in (0,1], got %v", alpha)
	}
	if resetFraction <= 0 || resetFraction > 1 {
		return nil, fmt.Errorf("reset fraction must be in (0,1], got %v", resetFraction)
	}

	l := &Ledger{
		alpha:         alpha,
		resetFraction: resetFraction,
		logger:        slog.Default(),
		scores:        make(map[id.Identity]float64),
		excluded:      make(map[id.Identity]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Update applies the EMA to every rewarded identity:
//
//	score = alpha*reward + (1-alpha)*score
//
// Non-finite rewards are coerced to 0 so a broken reward function can never
// poison the score vector. Identities absent from rewards keep their previous
// score; reputational memory persists across cycles where a node was not
// selected.
func (l *Ledger) Update(rewards map[id.Identity]float64) {
	if len(rewards) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for identity, reward := range rewards {
		if math.IsNaN(reward) || math.IsInf(reward, 0) {
			l.logger.Warn("non-finite reward coerced to zero", "identity", identity, "reward", reward)
			reward = 0
		}
		l.scores[identity] = l.alpha*reward + (1-l.alpha)*l.scores[identity]
	}
}

// Score returns the current score for the identity, 0 when never rewarded.
func (l *Ledger) Score(identity id.Identity) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scores[identity]
}

// Scores returns a copy of the score vector.
func (l *Ledger) Scores() map[id.Identity]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[id.Identity]float64, len(l.scores))
	for identity, score := range l.scores {
		out[identity] = score
	}
	return out
}

// MarkExcluded adds identities to the exclusion set and enforces the size
// bound: when the set outgrows ceil(resetFraction*knownCount) it is cleared
// entirely. Excluded nodes are allowed to self-heal rather than letting the
// set grow unbounded and starve the network of candidates.
func (l *Ledger) MarkExcluded(identities []id.Identity, knownCount int) {
	if len(identities) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, identity := range identities {
		l.excluded[identity] = struct{}{}
	}

	bound := int(math.Ceil(l.resetFraction * float64(knownCount)))
	if len(l.excluded) > bound {
		l.logger.Info("exclusion set exceeded bound, clearing",
			"excluded", len(l.excluded),
			"bound", bound,
			"known", knownCount,
		)
		l.excluded = make(map[id.Identity]struct{})
	}
}

// Excluded returns a copy of the exclusion set.
func (l *Ledger) Excluded() map[id.Identity]struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[id.Identity]struct{}, len(l.excluded))
	for identity := range l.excluded {
		out[identity] = struct{}{}
	}
	return out
}

// IsExcluded reports whether the identity is currently excluded from routing.
func (l *Ledger) IsExcluded(identity id.Identity) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.excluded[identity]
	return ok
}

// Restore replaces the score vector, used when loading a snapshot at startup.
func (l *Ledger) Restore(scores map[id.Identity]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.scores = make(map[id.Identity]float64, len(scores))
	for identity, score := range scores {
		if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
			continue
		}
		l.scores[identity] = score
	}
}
