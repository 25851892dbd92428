package httptransport

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Identity        string `json:"identity"`
	Network         string `json:"network"`
	ModelType       string `json:"model_type"`
	Prompt          string `json:"prompt"`
	ProtocolVersion int    `json:"protocol_version"`
}

// VariantRequest is the body of POST /api/v1/query/variant. It names the
// single responder whose earlier answer should be re-generated.
type VariantRequest struct {
	Identity        string  `json:"identity"`
	Target          string  `json:"target"`
	Network         string  `json:"network"`
	ModelType       string  `json:"model_type"`
	Prompt          string  `json:"prompt"`
	Temperature     float64 `json:"temperature"`
	ProtocolVersion int     `json:"protocol_version"`
}

// DiscoveryRequest is the body of POST /api/v1/discovery, the availability
// probe that runs the discovery admission cascade including rate limiting.
type DiscoveryRequest struct {
	Identity        string `json:"identity"`
	ProtocolVersion int    `json:"protocol_version"`
}

// TokenRequest exchanges the operator secret for a bearer token.
type TokenRequest struct {
	Operator string `json:"operator"`
	Secret   string `json:"secret"`
}
