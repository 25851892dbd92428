package registry

import "context"

// MembershipClient is the external membership collaborator (the consensus
// client in production). It returns the current participant set; the service
// refreshes its snapshot from it periodically.
type MembershipClient interface {
	FetchParticipants(ctx context.Context) ([]Participant, error)
}
