// Package selector chooses which identities a request is routed to, ranked
// by reputation score.
package selector

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	id "palisade/pkg/domain"
)

// Selector ranks known identities by score and picks the routed subset.
type Selector struct {
	fraction float64

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Selector)

// WithSeed fixes the random source so tests can assert which of several
// valid responses gets returned.
func WithSeed(seed int64) Option {
	return func(s *Selector) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// New constructs a selector routing to the top ceil(fraction*n) identities.
func New(fraction float64, opts ...Option) (*Selector, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("selection fraction must be in (0,1], got %v", fraction)
	}
	s := &Selector{
		fraction: fraction,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TopK returns the top ceil(fraction*len(known)) identities by score
// descending, skipping the excluded set. Ties break by identity string order
// so the result is deterministic for a given score vector.
func (s *Selector) TopK(known []id.Identity, scores map[id.Identity]float64, excluded map[id.Identity]struct{}) []id.Identity {
	if len(known) == 0 {
		return nil
	}

	k := int(math.Ceil(s.fraction * float64(len(known))))

	candidates := make([]id.Identity, 0, len(known))
	for _, identity := range known {
		if _, ok := excluded[identity]; ok {
			continue
		}
		candidates = append(candidates, identity)
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, sj := scores[candidates[i]], scores[candidates[j]]
		if si != sj {
			return si > sj
		}
		return candidates[i] < candidates[j]
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// PickOne returns a uniformly random index in [0,n). One response among the
// successful responders is chosen at random so no single node is
// systematically favored when multiple valid answers exist.
func (s *Selector) PickOne(n int) int {
	if n <= 1 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}
