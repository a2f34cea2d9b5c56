package fields

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
	ctx      context.Context
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = Default()
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
}

func (s *RegistrySuite) requireFieldFailure(err error, key Key, reason string) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "expected validation error, got %v", err)
	fields := dErrors.FieldsOf(err)
	s.Require().Len(fields, 1)
	s.Equal(string(key), fields[0].Field)
	if reason != "" {
		s.Equal(reason, fields[0].Reason)
	}
}

func (s *RegistrySuite) TestDescribe() {
	s.Run("known field", func() {
		meta, err := s.registry.Describe(KeyGender)
		s.Require().NoError(err)
		s.Equal(TypeEnum, meta.Type)
		s.Equal([]string{"MALE", "FEMALE", "OTHER"}, meta.Domain)
	})

	s.Run("unknown field is not found", func() {
		_, err := s.registry.Describe("favouriteColour")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("returned domain cannot mutate the catalog", func() {
		meta, err := s.registry.Describe(KeyGender)
		s.Require().NoError(err)
		meta.Domain[0] = "TAMPERED"

		again, err := s.registry.Describe(KeyGender)
		s.Require().NoError(err)
		s.Equal("MALE", again.Domain[0])
	})

	s.Run("catalog order is stable", func() {
		keys := s.registry.Keys()
		s.Equal(KeyFirstName, keys[0])
		s.Equal(KeyPhone, keys[len(keys)-1])
		s.Equal(len(Catalog()), s.registry.Len())
	})
}

func (s *RegistrySuite) TestDateFields() {
	s.Run("accepts a past date", func() {
		v, err := s.registry.Validate(s.ctx, KeyDateOfBirth, "1990-04-01")
		s.Require().NoError(err)
		s.Equal("1990-04-01", v)
	})

	s.Run("accepts today", func() {
		v, err := s.registry.Validate(s.ctx, KeyDateOfBirth, "2024-06-15")
		s.Require().NoError(err)
		s.Equal("2024-06-15", v)
	})

	s.Run("rejects tomorrow", func() {
		_, err := s.registry.Validate(s.ctx, KeyDateOfBirth, "2024-06-16")
		s.requireFieldFailure(err, KeyDateOfBirth, ReasonDateFuture)
	})

	s.Run("normalizes RFC 3339 timestamps", func() {
		v, err := s.registry.Validate(s.ctx, KeyDateOfBirth, "1985-12-31T10:00:00Z")
		s.Require().NoError(err)
		s.Equal("1985-12-31", v)
	})

	s.Run("RFC 3339 instants use the UTC calendar day", func() {
		ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC))

		v, err := s.registry.Validate(ctx, KeyDateOfBirth, "2026-10-17T00:30:00+05:00")
		s.Require().NoError(err, "19:30Z on the 16th is today in UTC")
		s.Equal("2026-10-16", v)

		_, err = s.registry.Validate(ctx, KeyDateOfBirth, "2026-10-16T23:00:00-05:00")
		s.requireFieldFailure(err, KeyDateOfBirth, ReasonDateFuture)
	})

	s.Run("rejects unparseable input", func() {
		for _, raw := range []string{"", "yesterday", "31/12/1985", "1985-13-01", "1985-02-30"} {
			_, err := s.registry.Validate(s.ctx, KeyDateOfBirth, raw)
			s.requireFieldFailure(err, KeyDateOfBirth, ReasonDateFormat)
		}
	})
}

func (s *RegistrySuite) TestEnumFields() {
	s.Run("every domain value is accepted", func() {
		meta, err := s.registry.Describe(KeyCitizenshipStatus)
		s.Require().NoError(err)
		for _, v := range meta.Domain {
			got, err := s.registry.Validate(s.ctx, KeyCitizenshipStatus, v)
			s.Require().NoError(err)
			s.Equal(v, got)
		}
	})

	s.Run("normalizes case and whitespace", func() {
		got, err := s.registry.Validate(s.ctx, KeyGender, "  female ")
		s.Require().NoError(err)
		s.Equal("FEMALE", got)
	})

	s.Run("rejects values outside the domain", func() {
		_, err := s.registry.Validate(s.ctx, KeyGender, "UNKNOWN")
		s.requireFieldFailure(err, KeyGender, "must be one of MALE, FEMALE, OTHER")
	})
}

func (s *RegistrySuite) TestTextFields() {
	s.Run("trims text", func() {
		got, err := s.registry.Validate(s.ctx, KeyFirstName, "  Ana ")
		s.Require().NoError(err)
		s.Equal("Ana", got)
	})

	s.Run("required text rejects blank", func() {
		_, err := s.registry.Validate(s.ctx, KeyLastName, "   ")
		s.requireFieldFailure(err, KeyLastName, ReasonRequired)
	})

	s.Run("optional text accepts blank", func() {
		got, err := s.registry.Validate(s.ctx, KeyMiddleName, "")
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("email format", func() {
		_, err := s.registry.Validate(s.ctx, KeyEmail, "not-an-email")
		s.requireFieldFailure(err, KeyEmail, ReasonEmail)

		got, err := s.registry.Validate(s.ctx, KeyEmail, "ana@example.org")
		s.Require().NoError(err)
		s.Equal("ana@example.org", got)
	})

	s.Run("photo must be an http URL", func() {
		_, err := s.registry.Validate(s.ctx, KeyPhoto, "ftp://files.example.org/a.png")
		s.requireFieldFailure(err, KeyPhoto, ReasonURL)

		_, err = s.registry.Validate(s.ctx, KeyPhoto, "https://cdn.example.org/photos/1.png")
		s.Require().NoError(err)
	})

	s.Run("length limit", func() {
		_, err := s.registry.Validate(s.ctx, KeyPlaceOfBirth, strings.Repeat("x", DefaultMaxLength+1))
		s.requireFieldFailure(err, KeyPlaceOfBirth, "")
	})
}

func (s *RegistrySuite) TestValidateAll() {
	s.Run("collects every failure", func() {
		_, err := s.registry.ValidateAll(s.ctx, Values{
			KeyEmail:       "bad",
			KeyDateOfBirth: "2999-01-01",
			KeyFirstName:   "Ana",
			"shoeSize":     "42",
		})
		s.Require().Error(err)
		fields := dErrors.FieldsOf(err)
		s.Require().Len(fields, 3)
		s.Equal("dateOfBirth", fields[0].Field)
		s.Equal("email", fields[1].Field)
		s.Equal("shoeSize", fields[2].Field)
	})

	s.Run("returns normalized values", func() {
		got, err := s.registry.ValidateAll(s.ctx, Values{KeyGender: "other", KeyFirstName: " Ana "})
		s.Require().NoError(err)
		s.Equal(Values{KeyGender: "OTHER", KeyFirstName: "Ana"}, got)
	})
}

func TestNewRegistry_Invariants(t *testing.T) {
	t.Run("duplicate keys", func(t *testing.T) {
		_, err := NewRegistry(Meta{Key: KeyEmail, Type: TypeText}, Meta{Key: KeyEmail, Type: TypeText})
		if !dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			t.Fatalf("expected invariant violation, got %v", err)
		}
	})

	t.Run("enum without domain", func(t *testing.T) {
		_, err := NewRegistry(Meta{Key: KeyGender, Type: TypeEnum})
		if !dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			t.Fatalf("expected invariant violation, got %v", err)
		}
	})
}
