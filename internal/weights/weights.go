// Package weights converts reputation scores into the normalized, quantized
// weight vector published to the external consensus layer.
package weights

import (
	"math"
	"sort"

	id "palisade/pkg/domain"
)

// Entry is one (identity, quantized weight) pair.
type Entry struct {
	Identity id.Identity
	Weight   uint64
}

// Vector is an ordered weight vector, allocated fresh each publish cycle and
// never mutated in place. Order is identity-lexicographic so two computations
// over the same scores are byte-for-byte identical.
type Vector []Entry

// Sum returns the total quantized weight.
func (v Vector) Sum() uint64 {
	var total uint64
	for _, e := range v {
		total += e.Weight
	}
	return total
}

// Compute produces the quantized weight vector for the given scores:
//
//  1. L1-normalize (all-zero scores produce an all-zero vector)
//  2. apply the per-identity cap, water-filling the excess back onto the
//     uncapped identities (cap 0 disables the step)
//  3. quantize into the budget with largest-remainder rounding, which avoids
//     the systematic bias of truncating every entry
//
// Compute is pure and deterministic: unchanged scores yield the same vector,
// which is what makes publishing idempotent and safe to re-run.
func Compute(scores map[id.Identity]float64, budget uint64, cap float64) Vector {
	identities := make([]id.Identity, 0, len(scores))
	for identity := range scores {
		identities = append(identities, identity)
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i] < identities[j] })

	normalized := normalize(identities, scores)
	if normalized == nil {
		out := make(Vector, len(identities))
		for i, identity := range identities {
			out[i] = Entry{Identity: identity}
		}
		return out
	}

	if cap > 0 {
		applyCap(normalized, cap)
	}

	return quantize(identities, normalized, budget)
}

// normalize divides each score by the total, returning nil when the total is
// zero or non-finite so callers emit an all-zero vector instead of dividing
// by zero.
func normalize(identities []id.Identity, scores map[id.Identity]float64) []float64 {
	var sum float64
	for _, identity := range identities {
		s := scores[identity]
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			s = 0
		}
		sum += s
	}
	if sum <= 0 || math.IsInf(sum, 0) {
		return nil
	}

	out := make([]float64, len(identities))
	for i, identity := range identities {
		s := scores[identity]
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			s = 0
		}
		out[i] = s / sum
	}
	return out
}

// applyCap clamps weights above cap and redistributes the clipped mass over
// the uncapped identities, repeating until nothing exceeds the cap. When the
// cap is infeasible (cap*n < 1) everything ends up capped and the vector sums
// below 1; quantize handles the shortfall.
func applyCap(weights []float64, cap float64) {
	capped := make([]bool, len(weights))
	for range weights {
		var excess, uncappedSum float64
		for i, w := range weights {
			if capped[i] {
				continue
			}
			if w > cap {
				excess += w - cap
				weights[i] = cap
				capped[i] = true
			} else {
				uncappedSum += w
			}
		}
		if excess == 0 || uncappedSum == 0 {
			return
		}
		scale := (uncappedSum + excess) / uncappedSum
		for i, w := range weights {
			if !capped[i] {
				weights[i] = w * scale
			}
		}
	}
}

// quantize maps normalized weights onto integers summing to at most budget
// using largest-remainder rounding.
func quantize(identities []id.Identity, normalized []float64, budget uint64) Vector {
	type part struct {
		index     int
		remainder float64
	}

	out := make(Vector, len(identities))
	parts := make([]part, len(identities))
	var used uint64
	for i, w := range normalized {
		ideal := w * float64(budget)
		floor := math.Floor(ideal)
		out[i] = Entry{Identity: identities[i], Weight: uint64(floor)}
		used += uint64(floor)
		parts[i] = part{index: i, remainder: ideal - floor}
	}

	if used < budget {
		sort.SliceStable(parts, func(a, b int) bool {
			if parts[a].remainder != parts[b].remainder {
				return parts[a].remainder > parts[b].remainder
			}
			return identities[parts[a].index] < identities[parts[b].index]
		})
		leftover := budget - used
		for _, p := range parts {
			if leftover == 0 {
				break
			}
			if p.remainder <= 0 {
				break
			}
			out[p.index].Weight++
			leftover--
		}
	}

	return out
}
