package httptransport

import (
	"context"
	"net/http"

	"palisade/internal/admintoken"
	dErrors "palisade/pkg/domain-errors"
	"palisade/pkg/platform/httputil"
	"palisade/pkg/requestcontext"

	"log/slog"
)

// ReloadFunc re-reads the admission configuration and swaps it into the
// gatekeeper. Wired in main so the handler stays free of config plumbing.
type ReloadFunc func(ctx context.Context) error

// AdminHandler serves the operator endpoints: token exchange and gatekeeper
// config reload.
type AdminHandler struct {
	tokens *admintoken.Service
	reload ReloadFunc
	logger *slog.Logger
}

func NewAdminHandler(tokens *admintoken.Service, reload ReloadFunc, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{tokens: tokens, reload: reload, logger: logger}
}

// HandleToken handles POST /admin/token: exchanges the operator secret for a
// short-lived bearer token.
func (h *AdminHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if !h.tokens.Enabled() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "operator token issuance is not configured"))
		return
	}

	token, err := h.tokens.Exchange(req.Operator, req.Secret)
	if err != nil {
		h.logger.InfoContext(ctx, "operator token exchange rejected",
			"request_id", requestID,
			"operator", req.Operator,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "operator token issued",
		"request_id", requestID,
		"operator", req.Operator,
	)
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// HandleReload handles POST /admin/gatekeeper/reload: re-reads the admission
// configuration from the environment and applies it without a restart.
func (h *AdminHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := h.reload(ctx); err != nil {
		h.logger.ErrorContext(ctx, "gatekeeper config reload failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "configuration reload failed", err))
		return
	}

	h.logger.InfoContext(ctx, "gatekeeper config reloaded", "request_id", requestID)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
