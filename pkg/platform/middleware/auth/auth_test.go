package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/pkg/domain"
	"registrar/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func captured(seen *domain.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = requestcontext.Principal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		validator stubValidator
		status    int
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized},
		{"invalid token", "Bearer abc", stubValidator{err: errors.New("expired")}, http.StatusUnauthorized},
		{"unknown role", "Bearer abc", stubValidator{claims: &JWTClaims{Subject: "1234567890", Role: "admin"}}, http.StatusUnauthorized},
		{"missing subject", "Bearer abc", stubValidator{claims: &JWTClaims{Role: "citizen"}}, http.StatusUnauthorized},
		{"valid", "Bearer abc", stubValidator{claims: &JWTClaims{Subject: "1234567890", Role: "citizen"}}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen domain.Principal
			h := RequireAuth(tt.validator, discard)(captured(&seen))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, domain.Principal{ID: "1234567890", Role: domain.RoleCitizen}, seen)
			} else {
				assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	agencyOnly := RequireRole(discard, domain.RoleAgency)

	t.Run("no principal", func(t *testing.T) {
		var seen domain.Principal
		w := httptest.NewRecorder()
		agencyOnly(captured(&seen)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		var seen domain.Principal
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithPrincipal(req.Context(), domain.Principal{ID: "1234567890", Role: domain.RoleCitizen}))
		w := httptest.NewRecorder()
		agencyOnly(captured(&seen)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("allowed", func(t *testing.T) {
		var seen domain.Principal
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithPrincipal(req.Context(), domain.Principal{ID: "agent-7", Role: domain.RoleAgency}))
		w := httptest.NewRecorder()
		agencyOnly(captured(&seen)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "agent-7", seen.ID)
	})
}
