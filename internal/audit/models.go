package audit

import (
	"context"
	"time"

	id "palisade/pkg/domain"
)

// Event captures one admission decision for the audit trail. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Identity   id.Identity `json:"identity"`
	Kind       string      `json:"kind"` // "discovery" or "query"
	Allowed    bool        `json:"allowed"`
	Reason     string      `json:"reason"`
	ClientIP   string      `json:"client_ip,omitempty"`
	ClientName string      `json:"client_name,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
}

// Sink receives audit events. Implementations must be safe for concurrent
// use by the worker only; handlers never call a sink directly.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
