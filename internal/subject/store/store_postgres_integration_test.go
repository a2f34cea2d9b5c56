//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registrar/internal/fields"
	"registrar/internal/subject/models"
	"registrar/internal/subject/store"
	"registrar/pkg/domain"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/requestcontext"
	"registrar/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "change_requests", "subjects"))
}

func (s *PostgresStoreSuite) TestApplyFieldsTouchesOnlyNamedKeys() {
	id := domain.SubjectID("1234567890")
	s.Require().NoError(s.store.Upsert(s.ctx, &models.Record{
		SubjectID: id,
		Values: fields.Values{
			fields.KeyFirstName: "Ivan",
			fields.KeyLastName:  "Ivanov",
			fields.KeyEmail:     "ivan@example.org",
		},
		IsActive: true,
	}))

	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, at)
	updated, err := s.store.ApplyFields(ctx, id, fields.Values{fields.KeyEmail: "ivan@new.example.org"})
	s.Require().NoError(err)

	s.Equal(fields.Values{
		fields.KeyFirstName: "Ivan",
		fields.KeyLastName:  "Ivanov",
		fields.KeyEmail:     "ivan@new.example.org",
	}, updated.Values)
	s.True(updated.UpdatedAt.Equal(at))

	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(updated.Values, got.Values)
}

func (s *PostgresStoreSuite) TestMissingSubject() {
	_, err := s.store.Get(s.ctx, "9999999999")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.ApplyFields(s.ctx, "9999999999", fields.Values{fields.KeyEmail: "a@b.org"})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpsertReplacesAndCounts() {
	id := domain.SubjectID("1234567890")
	s.Require().NoError(s.store.Upsert(s.ctx, &models.Record{SubjectID: id, Values: fields.Values{fields.KeyFirstName: "Ivan"}, IsActive: true}))
	s.Require().NoError(s.store.Upsert(s.ctx, &models.Record{SubjectID: id, Values: fields.Values{fields.KeyFirstName: "Petar"}, IsActive: false}))

	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Petar", got.Values[fields.KeyFirstName])
	s.False(got.IsActive)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}
