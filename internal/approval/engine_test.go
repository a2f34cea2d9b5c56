package approval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registrar/internal/changerequest/models"
	"registrar/internal/changerequest/service"
	"registrar/internal/changerequest/store"
	"registrar/internal/fields"
	"registrar/internal/platform/lock"
	subjectmodels "registrar/internal/subject/models"
	subjectstore "registrar/internal/subject/store"
	"registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/audit"
	auditmemory "registrar/pkg/platform/audit/store/memory"
	"registrar/pkg/requestcontext"
)

const (
	ivan  domain.SubjectID = "1234567890"
	agent                  = "agent-7"
)

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	requests *store.InMemory
	subjects *subjectstore.InMemory
	audit    *auditmemory.InMemoryStore
	service  *service.Service
	engine   *Engine
	original fields.Values
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

type auditEmitter struct{ store *auditmemory.InMemoryStore }

func (e auditEmitter) Emit(ctx context.Context, event audit.Event) error {
	return e.store.Append(ctx, event)
}

func (s *EngineSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))
	s.requests = store.NewInMemory()
	s.subjects = subjectstore.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.original = fields.Values{
		fields.KeyFirstName:   "Ivan",
		fields.KeyLastName:    "Ivanov",
		fields.KeyEmail:       "ivan@example.org",
		fields.KeyDateOfBirth: "1980-02-14",
	}
	s.Require().NoError(s.subjects.Upsert(s.ctx, &subjectmodels.Record{
		SubjectID: ivan,
		Values:    s.original.Clone(),
		IsActive:  true,
	}))

	registry := fields.Default()
	publisher := auditEmitter{s.audit}
	s.service = service.New(s.requests, s.subjects, registry, service.WithAuditPublisher(publisher))
	s.engine = New(s.service, s.subjects, registry, lock.NewSharded(time.Second), WithAuditPublisher(publisher))
}

func (s *EngineSuite) propose(edits map[string]string) *models.ChangeRequest {
	cr, err := s.service.Propose(s.ctx, service.ProposeCommand{SubjectID: ivan, Edits: edits, RequestedBy: ivan.String()})
	s.Require().NoError(err)
	return cr
}

func (s *EngineSuite) record() *subjectmodels.Record {
	r, err := s.subjects.Get(s.ctx, ivan)
	s.Require().NoError(err)
	return r
}

func (s *EngineSuite) TestApproveTouchesOnlyRequestedKeys() {
	cr := s.propose(map[string]string{"lastName": "Horvat", "phone": "+385 1 234"})

	result, err := s.engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: true, ResolvedBy: agent})
	s.Require().NoError(err)

	s.Equal(cr.ID, result.Request.ID)
	s.Equal(models.StatusApproved, result.Request.Status)
	s.Equal(agent, result.Request.ResolvedBy)
	s.Equal(fields.Values{fields.KeyLastName: "Horvat", fields.KeyPhone: "+385 1 234"}, result.Applied)

	after := s.record()
	s.Equal("Horvat", after.Values[fields.KeyLastName])
	s.Equal("+385 1 234", after.Values[fields.KeyPhone])
	for _, key := range []fields.Key{fields.KeyFirstName, fields.KeyEmail, fields.KeyDateOfBirth} {
		s.Equal(s.original[key], after.Values[key], "untouched key %s", key)
	}
	s.Equal(after.Values, result.Record.Values)

	events, err := s.audit.ListBySubject(s.ctx, ivan.String())
	s.Require().NoError(err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, string(audit.EventChangeRequestApproved))
	s.Contains(actions, string(audit.EventSubjectRecordUpdated))
}

func (s *EngineSuite) TestRejectTouchesNothing() {
	s.propose(map[string]string{"lastName": "Horvat"})
	before := s.record()

	result, err := s.engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: false, ResolvedBy: agent})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, result.Request.Status)
	s.Nil(result.Applied)
	s.Nil(result.Record)

	after := s.record()
	s.Equal(before.Values, after.Values)
	s.Equal(before.UpdatedAt, after.UpdatedAt)
}

func (s *EngineSuite) TestSecondResolveIsNotFound() {
	s.propose(map[string]string{"lastName": "Horvat"})
	_, err := s.engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: true, ResolvedBy: agent})
	s.Require().NoError(err)

	_, err = s.engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: false, ResolvedBy: agent})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal("Horvat", s.record().Values[fields.KeyLastName])
}

func (s *EngineSuite) TestNoPendingRequest() {
	_, err := s.engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: true, ResolvedBy: agent})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestMissingSubjectID() {
	_, err := s.engine.Resolve(s.ctx, ResolveCommand{Approve: true})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *EngineSuite) TestRevalidationFailureKeepsPending() {
	// Stored directly to stand in for a request that went stale after submission.
	cr, err := models.NewChangeRequest(domain.NewRequestID(), ivan,
		fields.Values{fields.KeyGender: "UNKNOWN", fields.KeyLastName: "Horvat"},
		s.original, ivan.String(), requestcontext.Now(s.ctx))
	s.Require().NoError(err)
	s.Require().NoError(s.requests.CreateIfNoPending(s.ctx, cr))

	_, err = s.engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: true, ResolvedBy: agent})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("gender", dErrors.FieldsOf(err)[0].Field)

	still, err := s.service.PendingFor(s.ctx, ivan)
	s.Require().NoError(err)
	s.Equal(cr.ID, still.ID)
	s.Equal("Ivanov", s.record().Values[fields.KeyLastName])

	// The agency can still reject it.
	result, err := s.engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: false, ResolvedBy: agent})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, result.Request.Status)
}

func (s *EngineSuite) TestConcurrentResolvesApplyOnce() {
	s.propose(map[string]string{"lastName": "Horvat"})

	var (
		wg        sync.WaitGroup
		resolved  atomic.Int32
		notFound  atomic.Int32
		approvals atomic.Int32
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: i%2 == 0, ResolvedBy: agent})
			switch {
			case err == nil:
				resolved.Add(1)
				if result.Request.Status == models.StatusApproved {
					approvals.Add(1)
				}
			case dErrors.HasCode(err, dErrors.CodeNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), resolved.Load())
	s.Equal(int32(19), notFound.Load())

	latest, err := s.service.LatestFor(s.ctx, ivan)
	s.Require().NoError(err)
	if approvals.Load() == 1 {
		s.Equal(models.StatusApproved, latest.Status)
		s.Equal("Horvat", s.record().Values[fields.KeyLastName])
	} else {
		s.Equal(models.StatusRejected, latest.Status)
		s.Equal("Ivanov", s.record().Values[fields.KeyLastName])
	}
}

type recordingTx struct{ calls int }

func (r *recordingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

type brokenRecords struct{}

func (brokenRecords) ApplyFields(context.Context, domain.SubjectID, fields.Values) (*subjectmodels.Record, error) {
	return nil, errors.New("disk full")
}

func (s *EngineSuite) TestApproveRunsInTransaction() {
	tx := &recordingTx{}
	engine := New(s.service, s.subjects, fields.Default(), lock.NewSharded(time.Second), WithTxRunner(tx))
	s.propose(map[string]string{"lastName": "Horvat"})

	_, err := engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: true, ResolvedBy: agent})
	s.Require().NoError(err)
	s.Equal(1, tx.calls)
}

func (s *EngineSuite) TestRecordFailureLeavesRequestPending() {
	engine := New(s.service, brokenRecords{}, fields.Default(), lock.NewSharded(time.Second))
	cr := s.propose(map[string]string{"lastName": "Horvat"})

	_, err := engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: true, ResolvedBy: agent})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	still, err := s.service.PendingFor(s.ctx, ivan)
	s.Require().NoError(err)
	s.Equal(cr.ID, still.ID)
}

// interruptedRequests fails the first MarkResolved, as if the process died
// between the record update and the status change.
type interruptedRequests struct {
	Requests
	failed atomic.Bool
}

func (r *interruptedRequests) MarkResolved(ctx context.Context, id domain.RequestID, outcome models.Status, resolvedBy string) (*models.ChangeRequest, error) {
	if r.failed.CompareAndSwap(false, true) {
		return nil, dErrors.New(dErrors.CodeInternal, "connection reset")
	}
	return r.Requests.MarkResolved(ctx, id, outcome, resolvedBy)
}

func (s *EngineSuite) TestRetryAfterInterruptedApprovalResolves() {
	engine := New(&interruptedRequests{Requests: s.service}, s.subjects, fields.Default(), lock.NewSharded(time.Second))
	cr := s.propose(map[string]string{"lastName": "Horvat", "email": "ivan@horvat.example.org"})

	_, err := engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: true, ResolvedBy: agent})
	s.Require().Error(err)

	still, err := s.service.PendingFor(s.ctx, ivan)
	s.Require().NoError(err)
	s.Equal(cr.ID, still.ID)
	s.Equal(models.StatusPending, still.Status)
	applied := s.record().Values.Clone()
	s.Equal("Horvat", applied[fields.KeyLastName])

	result, err := engine.Resolve(s.ctx, ResolveCommand{SubjectID: ivan, Approve: true, ResolvedBy: agent})
	s.Require().NoError(err)
	s.Equal(cr.ID, result.Request.ID)
	s.Equal(models.StatusApproved, result.Request.Status)
	s.Equal(applied, s.record().Values)

	_, err = s.service.PendingFor(s.ctx, ivan)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
