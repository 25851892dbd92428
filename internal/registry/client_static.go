package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	id "palisade/pkg/domain"
)

// StaticClient serves a fixed participant set. Used when no membership
// directory is configured: single-node development and tests.
type StaticClient struct {
	participants []Participant
}

func NewStaticClient(participants []Participant) *StaticClient {
	return &StaticClient{participants: participants}
}

func (c *StaticClient) FetchParticipants(ctx context.Context) ([]Participant, error) {
	out := make([]Participant, len(c.participants))
	copy(out, c.participants)
	return out, nil
}

// ParseSeed parses seed participant entries of the form
// "identity|stake|endpoint". Seeded participants are always reachable.
func ParseSeed(entries []string) ([]Participant, error) {
	participants := make([]Participant, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("seed participant %q: want identity|stake|endpoint", entry)
		}

		identity, err := id.ParseIdentity(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("seed participant %q: %w", entry, err)
		}
		stake, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("seed participant %q: invalid stake: %w", entry, err)
		}

		participants = append(participants, Participant{
			Identity:  identity,
			Stake:     stake,
			Endpoint:  strings.TrimSpace(parts[2]),
			Reachable: true,
		})
	}
	return participants, nil
}
