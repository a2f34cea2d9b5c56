package testutil

import (
	"net/http"

	"registrar/pkg/domain"
	"registrar/pkg/requestcontext"
)

// WithPrincipal authenticates req as the auth middleware would.
func WithPrincipal(req *http.Request, id string, role domain.Role) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), domain.Principal{ID: id, Role: role})
	return req.WithContext(ctx)
}

// AsCitizen authenticates req as the citizen with the given PSN.
func AsCitizen(req *http.Request, psn string) *http.Request {
	return WithPrincipal(req, psn, domain.RoleCitizen)
}

// AsAgency authenticates req as an agency operator.
func AsAgency(req *http.Request, operatorID string) *http.Request {
	return WithPrincipal(req, operatorID, domain.RoleAgency)
}
