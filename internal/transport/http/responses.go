package httptransport

import "time"

// QueryResponse carries the chosen responder's answer.
type QueryResponse struct {
	Text      string `json:"text"`
	Responder string `json:"responder"`
	RequestID string `json:"request_id,omitempty"`
}

// DecisionResponse reports an admission outcome. Returned with 200 for
// allows (discovery probes) and 403 for denials.
type DecisionResponse struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// HealthResponse reports liveness and the server's current UTC time.
type HealthResponse struct {
	Timestamp time.Time `json:"timestamp"`
}

// TokenResponse carries an issued operator token.
type TokenResponse struct {
	Token string `json:"token"`
}
