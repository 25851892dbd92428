// Package query defines the contracts between the coordinator and its
// external collaborators: the serving nodes that execute structured queries
// and the reward function that scores their answers. The coordinator never
// sees how a query is built or executed, only whether a usable result came
// back.
package query

import (
	"context"
	"time"

	id "palisade/pkg/domain"
)

// Request is a natural-language query to route to serving nodes. Translation
// into a structured query happens inside the nodes (an LLM-backed
// collaborator); this core treats the prompt as opaque.
type Request struct {
	Network     string
	ModelType   string
	Prompt      string
	Temperature float64
}

// FailureKind classifies why a dispatch produced no usable result. The
// coordinator only branches on Denied (admission bookkeeping) and None;
// the remaining kinds exist for logging and the reward function.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureDenied        FailureKind = "denied"
	FailureTimeout       FailureKind = "timeout"
	FailureTransport     FailureKind = "transport"
	FailureBuild         FailureKind = "query_build_failed"
	FailureInterpret     FailureKind = "interpretation_failed"
	FailureNotApplicable FailureKind = "not_applicable"
)

// Response is one serving node's answer to a dispatched request.
type Response struct {
	Identity id.Identity
	Result   string
	Failure  FailureKind
	Elapsed  time.Duration
}

// OK reports whether the response carries a usable result.
func (r Response) OK() bool {
	return r.Failure == FailureNone
}

// Dispatcher delivers a request to a single serving node and waits for its
// response within the context deadline. Implementations live in the network
// transport; a node that does not answer in time must return a Response with
// FailureTimeout, not an error. Errors are reserved for local faults.
type Dispatcher interface {
	Dispatch(ctx context.Context, endpoint string, identity id.Identity, req Request) (Response, error)
}

// RewardFunc converts an observed response into a reward for the ledger.
// ok=false means "no reward": the response does not participate in this
// cycle's update (timeouts, invalid payloads). It is never a penalty.
type RewardFunc func(resp Response) (reward float64, ok bool)
