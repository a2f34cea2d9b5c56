package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"registrar/internal/approval"
	"registrar/internal/changerequest/models"
	"registrar/internal/changerequest/service"
	"registrar/internal/fields"
	"registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
	"registrar/pkg/platform/middleware/auth"
	"registrar/pkg/platform/middleware/request"
	"registrar/pkg/requestcontext"
)

// Service is the change request surface the handler needs.
type Service interface {
	Propose(ctx context.Context, cmd service.ProposeCommand) (*models.ChangeRequest, error)
	LatestFor(ctx context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error)
	ListPending(ctx context.Context) ([]*models.ChangeRequest, error)
	Get(ctx context.Context, id domain.RequestID) (*models.ChangeRequest, error)
}

// Resolver applies agency decisions.
type Resolver interface {
	Resolve(ctx context.Context, cmd approval.ResolveCommand) (*approval.AppliedResult, error)
}

// Handler serves the change request endpoints. Authentication runs upstream;
// Register adds the role checks.
type Handler struct {
	service  Service
	resolver Resolver
	registry *fields.Registry
	logger   *slog.Logger
}

func New(svc Service, resolver Resolver, registry *fields.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		service:  svc,
		resolver: resolver,
		registry: registry,
		logger:   logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/fields", h.HandleListFields)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.logger, domain.RoleCitizen))
		r.Post("/change-request", h.HandlePropose)
		r.Get("/change-request", h.HandleGetOwn)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.logger, domain.RoleAgency))
		r.Get("/change-requests", h.HandleListPending)
		r.Get("/change-requests/{id}", h.HandleGet)
		r.Put("/change-request/resolve", h.HandleResolve)
	})
}

// HandlePropose submits the caller's proposal for their own record.
func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ProposeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	subjectID, err := domain.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	principal := requestcontext.Principal(ctx)
	if principal.ID != subjectID.String() {
		h.logger.WarnContext(ctx, "citizen attempted to propose for another subject",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "citizens may only propose changes to their own record"))
		return
	}

	cr, err := h.service.Propose(ctx, service.ProposeCommand{
		SubjectID:   subjectID,
		Edits:       req.Edits,
		RequestedBy: principal.ID,
	})
	if err != nil {
		h.logFailure(ctx, "change request submission failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toSubmitResponse(cr))
}

// HandleGetOwn returns the caller's most recent request.
func (h *Handler) HandleGetOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := domain.ParseSubjectID(requestcontext.Principal(ctx).ID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "caller is not a registered subject"))
		return
	}
	cr, err := h.service.LatestFor(ctx, subjectID)
	if err != nil {
		h.logFailure(ctx, "failed to load latest change request", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChangeRequestResponse(cr))
}

func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requests, err := h.service.ListPending(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to list pending change requests", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(requests))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cr, err := h.service.Get(ctx, id)
	if err != nil {
		h.logFailure(ctx, "failed to load change request", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChangeRequestResponse(cr))
}

// HandleResolve approves or rejects a subject's pending request.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	subjectID, err := domain.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.resolver.Resolve(ctx, approval.ResolveCommand{
		SubjectID:  subjectID,
		Approve:    *req.Approve,
		ResolvedBy: requestcontext.Principal(ctx).ID,
	})
	if err != nil {
		h.logFailure(ctx, "change request resolution failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResolveResponse(result))
}

// HandleListFields returns the editable field catalog.
func (h *Handler) HandleListFields(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FieldsResponse{Fields: h.registry.All()})
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	args := []any{
		"error", err,
		"code", string(dErrors.CodeOf(err)),
		"request_id", request.GetRequestID(ctx),
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, args...)
		return
	}
	h.logger.ErrorContext(ctx, msg, args...)
}
