// Package approval resolves a subject's pending change request, writing
// approved values to the subject record.
package approval

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
	"registrar/internal/fields"
	"registrar/internal/platform/lock"
	subjectmodels "registrar/internal/subject/models"
	"registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/audit"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/requestcontext"
)

var tracer = otel.Tracer("registrar/approval")

// Requests is the slice of the change request service the engine drives.
type Requests interface {
	PendingFor(ctx context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error)
	MarkResolved(ctx context.Context, id domain.RequestID, outcome models.Status, resolvedBy string) (*models.ChangeRequest, error)
}

// Records writes approved values. ApplyFields must touch only the given keys.
type Records interface {
	ApplyFields(ctx context.Context, subjectID domain.SubjectID, values fields.Values) (*subjectmodels.Record, error)
}

// TxRunner runs fn in one transaction that stores join through ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ResolveCommand is an agency decision on a subject's pending request.
type ResolveCommand struct {
	SubjectID  domain.SubjectID
	Approve    bool
	ResolvedBy string
}

// AppliedResult describes a resolution. Applied and Record are empty on reject.
type AppliedResult struct {
	Request *models.ChangeRequest
	Applied fields.Values
	Record  *subjectmodels.Record
}

// Engine resolves pending requests one subject at a time.
type Engine struct {
	requests       Requests
	records        Records
	registry       *fields.Registry
	locker         lock.Locker
	tx             TxRunner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Engine)

// WithTxRunner makes the record update and the status change commit together.
func WithTxRunner(tx TxRunner) Option {
	return func(e *Engine) {
		e.tx = tx
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) {
		e.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(requests Requests, records Records, registry *fields.Registry, locker lock.Locker, opts ...Option) *Engine {
	e := &Engine{
		requests: requests,
		records:  records,
		registry: registry,
		locker:   locker,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve approves or rejects the subject's pending request.
//
// On approve every requested value is validated again; any failure leaves the
// request PENDING and the record untouched. Otherwise the record is updated
// first and the request marked APPROVED, so a crash in between leaves a
// pending request whose retry re-applies the same values.
func (e *Engine) Resolve(ctx context.Context, cmd ResolveCommand) (*AppliedResult, error) {
	ctx, span := tracer.Start(ctx, "approval.Resolve",
		trace.WithAttributes(
			attribute.String("subject_id", cmd.SubjectID.String()),
			attribute.Bool("approve", cmd.Approve),
		))
	defer span.End()
	start := time.Now()
	defer func() { e.metrics.ObserveResolveLatency(time.Since(start)) }()

	if cmd.SubjectID.IsZero() {
		return nil, fail(span, dErrors.New(dErrors.CodeBadRequest, "subject id is required"))
	}

	unlock, err := e.locker.Lock(ctx, cmd.SubjectID.String())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			return nil, fail(span, err)
		}
		return nil, fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock subject"))
	}
	defer unlock()

	pending, err := e.requests.PendingFor(ctx, cmd.SubjectID)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("request_id", pending.ID.String()))

	if !cmd.Approve {
		rejected, err := e.requests.MarkResolved(ctx, pending.ID, models.StatusRejected, cmd.ResolvedBy)
		if err != nil {
			return nil, fail(span, err)
		}
		e.metrics.IncrementResolved(string(models.StatusRejected), 0)
		return &AppliedResult{Request: rejected}, nil
	}

	values, err := e.registry.ValidateAll(ctx, pending.RequestedChanges)
	if err != nil {
		e.metrics.IncrementValidationFailure("resolve")
		e.logAudit(ctx, audit.EventChangeRequestStale, pending, cmd.ResolvedBy, failedKeys(err))
		return nil, fail(span, err)
	}

	result := &AppliedResult{Applied: values}
	err = e.inTx(ctx, func(ctx context.Context) error {
		record, err := e.records.ApplyFields(ctx, pending.SubjectID, values)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "subject not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update subject record")
		}
		approved, err := e.requests.MarkResolved(ctx, pending.ID, models.StatusApproved, cmd.ResolvedBy)
		if err != nil {
			return err
		}
		result.Record = record
		result.Request = approved
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	e.metrics.IncrementResolved(string(models.StatusApproved), len(values))
	e.logAudit(ctx, audit.EventSubjectRecordUpdated, result.Request, cmd.ResolvedBy, keyNames(values))
	return result, nil
}

func (e *Engine) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.tx == nil {
		return fn(ctx)
	}
	err := e.tx.RunInTx(ctx, fn)
	var domainErr *dErrors.Error
	if err != nil && !errors.As(err, &domainErr) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "approval transaction failed")
	}
	return err
}

func (e *Engine) logAudit(ctx context.Context, event audit.AuditEvent, cr *models.ChangeRequest, actor string, fieldKeys []string) {
	requestID := requestcontext.RequestID(ctx)
	if e.logger != nil {
		e.logger.InfoContext(ctx, string(event),
			"event", string(event),
			"log_type", "audit",
			"subject_id", cr.SubjectID.String(),
			"change_request_id", cr.ID.String(),
			"actor_id", actor,
			"fields", fieldKeys,
			"request_id", requestID,
		)
	}
	if e.auditPublisher == nil {
		return
	}
	_ = e.auditPublisher.Emit(ctx, audit.Event{
		Category:        event.Category(),
		SubjectID:       cr.SubjectID.String(),
		Action:          string(event),
		ChangeRequestID: cr.ID.String(),
		Fields:          fieldKeys,
		ActorID:         actor,
		RequestID:       requestID,
	})
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func failedKeys(err error) []string {
	var out []string
	for _, fe := range dErrors.FieldsOf(err) {
		out = append(out, fe.Field)
	}
	return out
}

func keyNames(values fields.Values) []string {
	keys := values.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
