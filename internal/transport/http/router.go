package httptransport

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"palisade/internal/admintoken"
	dErrors "palisade/pkg/domain-errors"
	"palisade/pkg/platform/httputil"
	"palisade/pkg/platform/middleware/metadata"
	"palisade/pkg/platform/middleware/requestid"
)

// Register mounts the serving endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Post("/query", h.HandleQuery)
		v1.Post("/query/variant", h.HandleVariant)
		v1.Post("/discovery", h.HandleDiscovery)
	})
	r.Get("/healthz", h.HandleHealth)
}

// Register mounts the operator endpoints. The reload route sits behind bearer
// token auth; token exchange itself is open (it verifies the operator secret).
func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/admin/token", h.HandleToken)
	r.Group(func(admin chi.Router) {
		admin.Use(RequireOperator(h.tokens, h.logger))
		admin.Post("/admin/gatekeeper/reload", h.HandleReload)
	})
}

// RequireOperator rejects requests without a valid operator bearer token.
func RequireOperator(tokens *admintoken.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokens.Enabled() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "operator endpoints are not configured"))
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				if logger != nil {
					logger.InfoContext(r.Context(), "rejecting operator request", "error", err)
				}
				httputil.WriteError(w, err)
				return
			}

			if logger != nil {
				logger.InfoContext(r.Context(), "operator authenticated", "operator", claims.Operator)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter assembles the full HTTP surface: serving endpoints, operator
// endpoints, and the Prometheus scrape target.
func NewRouter(handler *Handler, admin *AdminHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.RequestID)
	r.Use(metadata.ClientMetadata)

	handler.Register(r)
	if admin != nil {
		admin.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
