package store

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"registrar/internal/fields"
	"registrar/internal/subject/models"
	"registrar/pkg/domain"
)

// Upserter is the write side the seed loader needs.
type Upserter interface {
	Upsert(ctx context.Context, record *models.Record) error
}

type seedFile struct {
	Subjects []seedSubject `yaml:"subjects"`
}

type seedSubject struct {
	SubjectID string            `yaml:"subjectId"`
	Active    *bool             `yaml:"active"`
	Fields    map[string]string `yaml:"fields"`
}

// LoadSeed parses a YAML fixture of subject records. Subject ids are checked
// as PSNs and field values are validated against registry.
func LoadSeed(ctx context.Context, r io.Reader, registry *fields.Registry) ([]*models.Record, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	out := make([]*models.Record, 0, len(file.Subjects))
	seen := make(map[domain.SubjectID]bool, len(file.Subjects))
	for i, s := range file.Subjects {
		subjectID, err := domain.ParseSubjectID(s.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("seed subject %d: %w", i, err)
		}
		if seen[subjectID] {
			return nil, fmt.Errorf("seed subject %d: duplicate subject id %s", i, subjectID)
		}
		seen[subjectID] = true

		values, err := registry.ValidateAll(ctx, fields.FromStringMap(s.Fields))
		if err != nil {
			return nil, fmt.Errorf("seed subject %s: %w", subjectID, err)
		}
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		out = append(out, &models.Record{SubjectID: subjectID, Values: values, IsActive: active})
	}
	return out, nil
}

// Seed writes records through store.
func Seed(ctx context.Context, store Upserter, records []*models.Record) error {
	for _, r := range records {
		if err := store.Upsert(ctx, r); err != nil {
			return fmt.Errorf("seed subject %s: %w", r.SubjectID, err)
		}
	}
	return nil
}
