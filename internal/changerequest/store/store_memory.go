package store

import (
	"context"
	"sync"

	"registrar/internal/changerequest/models"
	"registrar/pkg/domain"
	"registrar/pkg/platform/sentinel"
)

// Sentinel aliases so callers can match store errors without importing sentinel.
var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
)

// InMemory keeps change requests in process memory. A single mutex makes the
// pending check and insert one atomic step per call.
type InMemory struct {
	mu        sync.RWMutex
	byID      map[domain.RequestID]*models.ChangeRequest
	pending   map[domain.SubjectID]domain.RequestID
	latest    map[domain.SubjectID]domain.RequestID
	order     []domain.RequestID
	lastValue int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[domain.RequestID]*models.ChangeRequest),
		pending: make(map[domain.SubjectID]domain.RequestID),
		latest:  make(map[domain.SubjectID]domain.RequestID),
	}
}

// CreateIfNoPending inserts cr and assigns its Number, or returns ErrConflict
// when the subject already has a pending request.
func (s *InMemory) CreateIfNoPending(_ context.Context, cr *models.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[cr.SubjectID]; exists {
		return ErrConflict
	}
	s.lastValue++
	cr.Number = s.lastValue
	s.byID[cr.ID] = cr.Clone()
	s.pending[cr.SubjectID] = cr.ID
	s.latest[cr.SubjectID] = cr.ID
	s.order = append(s.order, cr.ID)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.RequestID) (*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cr, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cr.Clone(), nil
}

func (s *InMemory) FindPendingBySubject(_ context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pending[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// FindLatestBySubject returns the subject's most recently submitted request in any state.
func (s *InMemory) FindLatestBySubject(_ context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.latest[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// ListPending returns pending requests in insertion order.
func (s *InMemory) ListPending(_ context.Context) ([]*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ChangeRequest, 0, len(s.pending))
	for _, id := range s.order {
		if cr := s.byID[id]; cr.IsPending() {
			out = append(out, cr.Clone())
		}
	}
	return out, nil
}

// Execute runs validate then mutate against the stored request under the write lock.
// Nothing changes when validate fails.
func (s *InMemory) Execute(_ context.Context, id domain.RequestID, validate func(*models.ChangeRequest) error, mutate func(*models.ChangeRequest)) (*models.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cr, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := validate(cr); err != nil {
		return nil, err
	}
	mutate(cr)
	if !cr.IsPending() && s.pending[cr.SubjectID] == cr.ID {
		delete(s.pending, cr.SubjectID)
	}
	return cr.Clone(), nil
}

// Count returns the number of requests ever stored for subjectID.
func (s *InMemory) Count(_ context.Context, subjectID domain.SubjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, cr := range s.byID {
		if cr.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}
