package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"palisade/internal/admintoken"
	"palisade/pkg/platform/secrets"
)

func newAdminRouter(t *testing.T, reloadErr error) (chi.Router, *int) {
	t.Helper()

	hash, err := secrets.Hash("operator-secret")
	require.NoError(t, err)
	tokens := admintoken.New("signing-key", hash)

	reloads := 0
	handler := NewAdminHandler(tokens, func(ctx context.Context) error {
		reloads++
		return reloadErr
	}, nil)

	r := chi.NewRouter()
	handler.Register(r)
	return r, &reloads
}

func obtainToken(t *testing.T, router chi.Router) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/admin/token",
		strings.NewReader(`{"operator":"ops","secret":"operator-secret"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestTokenExchange(t *testing.T) {
	router, _ := newAdminRouter(t, nil)

	t.Run("valid secret yields a token", func(t *testing.T) {
		obtainToken(t, router)
	})

	t.Run("wrong secret is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/token",
			strings.NewReader(`{"operator":"ops","secret":"wrong"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestReload(t *testing.T) {
	t.Run("requires a bearer token", func(t *testing.T) {
		router, reloads := newAdminRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/admin/gatekeeper/reload", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Zero(t, *reloads)
	})

	t.Run("rejects an invalid token", func(t *testing.T) {
		router, reloads := newAdminRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/admin/gatekeeper/reload", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Zero(t, *reloads)
	})

	t.Run("authorized reload runs", func(t *testing.T) {
		router, reloads := newAdminRouter(t, nil)
		token := obtainToken(t, router)

		req := httptest.NewRequest(http.MethodPost, "/admin/gatekeeper/reload", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, *reloads)
	})

	t.Run("failed reload reports bad request", func(t *testing.T) {
		router, _ := newAdminRouter(t, errors.New("config: invalid value"))
		token := obtainToken(t, router)

		req := httptest.NewRequest(http.MethodPost, "/admin/gatekeeper/reload", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
