package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"registrar/internal/fields"
	"registrar/internal/subject/models"
	"registrar/pkg/domain"
	txcontext "registrar/pkg/platform/tx"
	"registrar/pkg/requestcontext"
)

// PostgresStore persists subject records in the subjects table. Editable
// values live in a JSONB column so ApplyFields can merge only named keys.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const recordColumns = `subject_id, fields, is_active, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, subjectID domain.SubjectID) (*models.Record, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM subjects WHERE subject_id = $1`, subjectID.String())
	return scanRecord(row)
}

// ApplyFields merges values into the stored JSONB so keys not named are untouched.
func (s *PostgresStore) ApplyFields(ctx context.Context, subjectID domain.SubjectID, values fields.Values) (*models.Record, error) {
	patch, err := json.Marshal(values.StringMap())
	if err != nil {
		return nil, fmt.Errorf("marshal field patch: %w", err)
	}
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE subjects
		SET fields = fields || $2::jsonb, updated_at = $3
		WHERE subject_id = $1
		RETURNING `+recordColumns,
		subjectID.String(), patch, requestcontext.Now(ctx))
	return scanRecord(row)
}

func (s *PostgresStore) Upsert(ctx context.Context, record *models.Record) error {
	payload, err := json.Marshal(record.Values.StringMap())
	if err != nil {
		return fmt.Errorf("marshal record fields: %w", err)
	}
	now := requestcontext.Now(ctx)
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO subjects (subject_id, fields, is_active, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $4, $5)
		ON CONFLICT (subject_id) DO UPDATE
		SET fields = EXCLUDED.fields, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
		record.SubjectID.String(), payload, record.IsActive, createdAt, now)
	if err != nil {
		return fmt.Errorf("upsert subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subjects: %w", err)
	}
	return n, nil
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		subjectID string
		raw       []byte
		r         models.Record
	)
	if err := row.Scan(&subjectID, &raw, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan subject: %w", err)
	}
	values := map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("decode subject fields: %w", err)
		}
	}
	r.SubjectID = domain.SubjectID(subjectID)
	r.Values = fields.FromStringMap(values)
	return &r, nil
}
