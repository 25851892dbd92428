package registry

import (
	"sort"

	id "palisade/pkg/domain"
)

// Participant is the registry's view of a single network participant: the
// declared identity key, its declared stake, and whether the membership layer
// currently reports a reachable serving endpoint for it.
type Participant struct {
	Identity  id.Identity
	Stake     float64
	Endpoint  string
	Reachable bool
}

// Snapshot is an immutable view of the known participants at one refresh.
// All admission and selection reads go through a Snapshot so a refresh never
// races an in-flight decision.
type Snapshot struct {
	participants map[id.Identity]Participant
}

// NewSnapshot builds a snapshot from a participant list. Later duplicates of
// the same identity win, matching the membership layer's ordering.
func NewSnapshot(participants []Participant) *Snapshot {
	m := make(map[id.Identity]Participant, len(participants))
	for _, p := range participants {
		m[p.Identity] = p
	}
	return &Snapshot{participants: m}
}

// Contains reports whether the identity is known to the registry.
func (s *Snapshot) Contains(identity id.Identity) bool {
	_, ok := s.participants[identity]
	return ok
}

// Reachable reports whether the identity currently has a reachable endpoint.
func (s *Snapshot) Reachable(identity id.Identity) bool {
	p, ok := s.participants[identity]
	return ok && p.Reachable
}

// StakeOf returns the declared stake for the identity, 0 when unknown.
func (s *Snapshot) StakeOf(identity id.Identity) float64 {
	return s.participants[identity].Stake
}

// EndpointOf returns the serving endpoint for the identity, "" when unknown.
func (s *Snapshot) EndpointOf(identity id.Identity) string {
	return s.participants[identity].Endpoint
}

// Identities returns all known identities in lexicographic order. The stable
// order keeps selection and weight publication deterministic across calls.
func (s *Snapshot) Identities() []id.Identity {
	out := make([]id.Identity, 0, len(s.participants))
	for identity := range s.participants {
		out = append(out, identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of known identities.
func (s *Snapshot) Count() int {
	return len(s.participants)
}
