package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	id "palisade/pkg/domain"
)

// participantPayload is the wire form served by the membership directory.
type participantPayload struct {
	Identity  string  `json:"identity"`
	Stake     float64 `json:"stake"`
	Endpoint  string  `json:"endpoint"`
	Reachable bool    `json:"reachable"`
}

// HTTPMembershipClient fetches the participant set from the network's
// membership directory over HTTP.
type HTTPMembershipClient struct {
	url    string
	client *http.Client
}

func NewHTTPMembershipClient(url string) *HTTPMembershipClient {
	return &HTTPMembershipClient{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPMembershipClient) FetchParticipants(ctx context.Context) ([]Participant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build membership request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch participants: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("membership directory returned %d", resp.StatusCode)
	}

	var payload []participantPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}

	participants := make([]Participant, 0, len(payload))
	for _, p := range payload {
		identity, err := id.ParseIdentity(p.Identity)
		if err != nil {
			continue // directory entries without an identity are unusable
		}
		participants = append(participants, Participant{
			Identity:  identity,
			Stake:     p.Stake,
			Endpoint:  p.Endpoint,
			Reachable: p.Reachable,
		})
	}
	return participants, nil
}
