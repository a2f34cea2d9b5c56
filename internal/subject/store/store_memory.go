package store

import (
	"context"
	"sync"

	"registrar/internal/fields"
	"registrar/internal/subject/models"
	"registrar/pkg/domain"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/requestcontext"
)

// ErrNotFound is returned when a subject record does not exist.
var ErrNotFound = sentinel.ErrNotFound

// InMemory is a process-local record store used by tests and the dev server.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.SubjectID]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[domain.SubjectID]*models.Record)}
}

// Get returns a copy of the subject's record.
func (s *InMemory) Get(_ context.Context, subjectID domain.SubjectID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// ApplyFields overwrites only the given keys and bumps UpdatedAt.
func (s *InMemory) ApplyFields(ctx context.Context, subjectID domain.SubjectID, values fields.Values) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Values == nil {
		r.Values = fields.Values{}
	}
	for k, v := range values {
		r.Values[k] = v
	}
	r.UpdatedAt = requestcontext.Now(ctx)
	return r.Clone(), nil
}

// Upsert creates or replaces a record. Used by seeding.
func (s *InMemory) Upsert(ctx context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := requestcontext.Now(ctx)
	r := record.Clone()
	if existing, ok := s.records[r.SubjectID]; ok {
		r.CreatedAt = existing.CreatedAt
	} else if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.records[r.SubjectID] = r
	return nil
}

// Count returns the number of stored records.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
