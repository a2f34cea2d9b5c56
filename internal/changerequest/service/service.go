package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"registrar/internal/changerequest/metrics"
	"registrar/internal/changerequest/models"
	"registrar/internal/changeset"
	"registrar/internal/fields"
	subjectmodels "registrar/internal/subject/models"
	"registrar/pkg/attrs"
	"registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/audit"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/requestcontext"
)

var tracer = otel.Tracer("registrar/changerequest")

// Store persists change requests. CreateIfNoPending must check and insert
// atomically per subject.
type Store interface {
	CreateIfNoPending(ctx context.Context, cr *models.ChangeRequest) error
	FindByID(ctx context.Context, id domain.RequestID) (*models.ChangeRequest, error)
	FindPendingBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error)
	FindLatestBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error)
	ListPending(ctx context.Context) ([]*models.ChangeRequest, error)
	Execute(ctx context.Context, id domain.RequestID, validate func(*models.ChangeRequest) error, mutate func(*models.ChangeRequest)) (*models.ChangeRequest, error)
}

// SubjectReader loads the canonical record a proposal is made against.
type SubjectReader interface {
	Get(ctx context.Context, subjectID domain.SubjectID) (*subjectmodels.Record, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the change request lifecycle: admission of new proposals,
// lookups for reviewers, and the single PENDING to terminal transition.
type Service struct {
	store          Store
	subjects       SubjectReader
	registry       *fields.Registry
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, subjects SubjectReader, registry *fields.Registry, opts ...Option) *Service {
	s := &Service{store: store, subjects: subjects, registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitCommand carries an already-validated change set.
type SubmitCommand struct {
	SubjectID   domain.SubjectID
	Changes     changeset.ChangeSet
	Snapshot    fields.Values
	RequestedBy string
}

// ProposeCommand carries raw edits as decoded from a client.
type ProposeCommand struct {
	SubjectID   domain.SubjectID
	Edits       map[string]string
	RequestedBy string
}

// Submit admits a PENDING request, or fails with CodeConflict when the subject
// already has one. Nothing is stored on failure.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*models.ChangeRequest, error) {
	ctx, span := tracer.Start(ctx, "changerequest.Submit",
		trace.WithAttributes(attribute.String("subject_id", cmd.SubjectID.String())))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveSubmitLatency(time.Since(start)) }()

	if cmd.Changes.IsZero() {
		return nil, fail(span, changeset.ErrEmptyChangeSet)
	}
	cr, err := models.NewChangeRequest(domain.NewRequestID(), cmd.SubjectID, cmd.Changes.Values(),
		cmd.Snapshot, cmd.RequestedBy, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, fail(span, dErrors.New(dErrors.CodeValidation, err.Error()))
		}
		return nil, fail(span, err)
	}

	if err := s.store.CreateIfNoPending(ctx, cr); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementConflicts()
			s.logAudit(ctx, audit.EventChangeRequestConflicted, nil,
				"subject_id", cmd.SubjectID.String(),
				"actor_id", cmd.RequestedBy,
			)
			return nil, fail(span, dErrors.New(dErrors.CodeConflict, "subject already has a pending change request"))
		}
		return nil, fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store change request"))
	}

	span.SetAttributes(attribute.String("request_id", cr.ID.String()))
	s.metrics.IncrementSubmitted()
	s.logAudit(ctx, audit.EventChangeRequestSubmitted, keyNames(cr.RequestedChanges),
		"subject_id", cr.SubjectID.String(),
		"change_request_id", cr.ID.String(),
		"actor_id", cr.RequestedBy,
	)
	return cr, nil
}

// Propose validates raw edits against the subject's current record and submits
// them. The snapshot holds every editable value at proposal time.
func (s *Service) Propose(ctx context.Context, cmd ProposeCommand) (*models.ChangeRequest, error) {
	record, err := s.subjects.Get(ctx, cmd.SubjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject record")
	}
	if !record.IsActive {
		return nil, dErrors.New(dErrors.CodeForbidden, "subject record is inactive")
	}

	snapshot := record.Editable(s.registry.Keys())
	changes, err := changeset.FromEdits(ctx, s.registry, cmd.Edits, snapshot)
	if err != nil {
		s.metrics.IncrementValidationFailure("submit")
		return nil, err
	}
	return s.Submit(ctx, SubmitCommand{
		SubjectID:   cmd.SubjectID,
		Changes:     changes,
		Snapshot:    snapshot,
		RequestedBy: cmd.RequestedBy,
	})
}

// ListPending returns every PENDING request in submission order.
func (s *Service) ListPending(ctx context.Context) ([]*models.ChangeRequest, error) {
	requests, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending change requests")
	}
	return requests, nil
}

func (s *Service) Get(ctx context.Context, id domain.RequestID) (*models.ChangeRequest, error) {
	cr, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translateFind(err, "change request not found")
	}
	return cr, nil
}

// PendingFor returns the subject's outstanding request.
func (s *Service) PendingFor(ctx context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error) {
	cr, err := s.store.FindPendingBySubject(ctx, subjectID)
	if err != nil {
		return nil, translateFind(err, "no pending change request for subject")
	}
	return cr, nil
}

// LatestFor returns the subject's most recent request in any state.
func (s *Service) LatestFor(ctx context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error) {
	cr, err := s.store.FindLatestBySubject(ctx, subjectID)
	if err != nil {
		return nil, translateFind(err, "no change request for subject")
	}
	return cr, nil
}

// MarkResolved moves a PENDING request to outcome. A request already in a
// terminal state fails with CodeInvalidState and is left untouched.
func (s *Service) MarkResolved(ctx context.Context, id domain.RequestID, outcome models.Status, resolvedBy string) (*models.ChangeRequest, error) {
	ctx, span := tracer.Start(ctx, "changerequest.MarkResolved",
		trace.WithAttributes(
			attribute.String("request_id", id.String()),
			attribute.String("outcome", string(outcome)),
		))
	defer span.End()

	if !outcome.IsTerminal() {
		return nil, fail(span, dErrors.New(dErrors.CodeBadRequest, "resolution outcome must be APPROVED or REJECTED"))
	}
	now := requestcontext.Now(ctx)
	cr, err := s.store.Execute(ctx, id,
		func(cr *models.ChangeRequest) error { return cr.CanResolve(outcome) },
		func(cr *models.ChangeRequest) { cr.ApplyResolution(outcome, resolvedBy, now) },
	)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, fail(span, dErrors.New(dErrors.CodeNotFound, "change request not found"))
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, fail(span, dErrors.New(dErrors.CodeInvalidState, "change request is not pending"))
		case dErrors.CodeOf(err) != dErrors.CodeInternal:
			return nil, fail(span, err)
		}
		return nil, fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve change request"))
	}

	event := audit.EventChangeRequestRejected
	if outcome == models.StatusApproved {
		event = audit.EventChangeRequestApproved
	}
	s.logAudit(ctx, event, keyNames(cr.RequestedChanges),
		"subject_id", cr.SubjectID.String(),
		"change_request_id", cr.ID.String(),
		"decision", string(outcome),
		"actor_id", resolvedBy,
	)
	return cr, nil
}

func translateFind(err error, notFound string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load change request")
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func keyNames(values fields.Values) []string {
	keys := values.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, fieldKeys []string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if s.logger != nil {
		args := append(attributes, "event", string(event), "log_type", "audit", "fields", fieldKeys)
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Category:        event.Category(),
		SubjectID:       attrs.ExtractString(attributes, "subject_id"),
		Action:          string(event),
		ChangeRequestID: attrs.ExtractString(attributes, "change_request_id"),
		Decision:        attrs.ExtractString(attributes, "decision"),
		Fields:          fieldKeys,
		ActorID:         attrs.ExtractString(attributes, "actor_id"),
	})
}
