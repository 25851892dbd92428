// Package httptransport is the thin HTTP layer over the gatekeeper and
// coordinator. Handlers decode, delegate, and encode; admission and routing
// logic stays in the domain services.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"palisade/internal/audit"
	"palisade/internal/gatekeeper"
	"palisade/internal/query"
	id "palisade/pkg/domain"
	dErrors "palisade/pkg/domain-errors"
	"palisade/pkg/platform/httputil"
	"palisade/pkg/platform/middleware/metadata"
	"palisade/pkg/requestcontext"
)

// Coordinator is the routing interface the handlers depend on.
type Coordinator interface {
	SubmitQuery(ctx context.Context, req query.Request) (*query.Response, error)
	SubmitVariant(ctx context.Context, target id.Identity, req query.Request) (*query.Response, error)
}

// Gatekeeper is the admission interface the handlers depend on.
type Gatekeeper interface {
	DecideDiscovery(ctx context.Context, req gatekeeper.RequestContext) gatekeeper.Decision
	DecideQuery(ctx context.Context, req gatekeeper.RequestContext) gatekeeper.Decision
}

// Handler wires the serving endpoints to the domain services.
type Handler struct {
	gatekeeper  Gatekeeper
	coordinator Coordinator
	auditor     *audit.Publisher
	logger      *slog.Logger
}

// NewHandler constructs the HTTP handler set. auditor may be nil.
func NewHandler(gk Gatekeeper, coord Coordinator, auditor *audit.Publisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		gatekeeper:  gk,
		coordinator: coord,
		auditor:     auditor,
		logger:      logger,
	}
}

// HandleQuery handles POST /api/v1/query: admission for the requesting
// identity, then routing through the coordinator.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[QueryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := id.ParseIdentity(req.Identity)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identity is required"))
		return
	}

	decision := h.gatekeeper.DecideQuery(ctx, gatekeeper.RequestContext{
		Identity:          identity,
		DeclaredNetwork:   req.Network,
		DeclaredModelType: req.ModelType,
		RawPayload:        req.Prompt,
		ProtocolVersion:   req.ProtocolVersion,
	})
	h.emitDecision(ctx, "query", identity, decision, requestID)

	if !decision.Allow {
		httputil.WriteJSON(w, http.StatusForbidden, DecisionResponse{Allow: false, Reason: decision.Reason})
		return
	}

	resp, err := h.coordinator.SubmitQuery(ctx, query.Request{
		Network:   req.Network,
		ModelType: req.ModelType,
		Prompt:    req.Prompt,
	})
	if err != nil {
		h.logger.InfoContext(ctx, "query routing failed",
			"request_id", requestID,
			"identity", identity,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "query served",
		"request_id", requestID,
		"identity", identity,
		"responder", resp.Identity,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, QueryResponse{
		Text:      resp.Result,
		Responder: resp.Identity.String(),
		RequestID: requestID,
	})
}

// HandleVariant handles POST /api/v1/query/variant: the admission cascade
// runs for the requesting identity, the dispatch goes to the named target.
func (h *Handler) HandleVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VariantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := id.ParseIdentity(req.Identity)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identity is required"))
		return
	}
	target, err := id.ParseIdentity(req.Target)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "target identity is required"))
		return
	}

	decision := h.gatekeeper.DecideQuery(ctx, gatekeeper.RequestContext{
		Identity:          identity,
		DeclaredNetwork:   req.Network,
		DeclaredModelType: req.ModelType,
		RawPayload:        req.Prompt,
		ProtocolVersion:   req.ProtocolVersion,
	})
	h.emitDecision(ctx, "query", identity, decision, requestID)

	if !decision.Allow {
		httputil.WriteJSON(w, http.StatusForbidden, DecisionResponse{Allow: false, Reason: decision.Reason})
		return
	}

	resp, err := h.coordinator.SubmitVariant(ctx, target, query.Request{
		Network:     req.Network,
		ModelType:   req.ModelType,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, QueryResponse{
		Text:      resp.Result,
		Responder: resp.Identity.String(),
		RequestID: requestID,
	})
}

// HandleDiscovery handles POST /api/v1/discovery, the availability probe.
func (h *Handler) HandleDiscovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DiscoveryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := id.ParseIdentity(req.Identity)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identity is required"))
		return
	}

	decision := h.gatekeeper.DecideDiscovery(ctx, gatekeeper.RequestContext{
		Identity:        identity,
		ProtocolVersion: req.ProtocolVersion,
	})
	h.emitDecision(ctx, "discovery", identity, decision, requestID)

	status := http.StatusOK
	if !decision.Allow {
		status = http.StatusForbidden
	}
	httputil.WriteJSON(w, status, DecisionResponse{Allow: decision.Allow, Reason: decision.Reason})
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Timestamp: time.Now().UTC()})
}

func (h *Handler) emitDecision(ctx context.Context, kind string, identity id.Identity, decision gatekeeper.Decision, requestID string) {
	if h.auditor == nil {
		return
	}
	h.auditor.Emit(ctx, audit.Event{
		Identity:   identity,
		Kind:       kind,
		Allowed:    decision.Allow,
		Reason:     decision.Reason,
		ClientIP:   metadata.GetClientIP(ctx),
		ClientName: metadata.GetClientName(ctx),
		RequestID:  requestID,
	})
}
