package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"registrar/internal/changerequest/models"
	"registrar/internal/fields"
	"registrar/pkg/domain"
	txcontext "registrar/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore persists change requests. The partial unique index
// change_requests_one_pending_per_subject enforces a single PENDING row per subject.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) execer(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const selectColumns = `
	SELECT id, number, subject_id, status, requested_changes, snapshot,
	       requested_by, resolved_by, created_at, resolved_at
	FROM change_requests`

func (s *PostgresStore) CreateIfNoPending(ctx context.Context, cr *models.ChangeRequest) error {
	changes, err := json.Marshal(cr.RequestedChanges.StringMap())
	if err != nil {
		return fmt.Errorf("marshal requested changes: %w", err)
	}
	snapshot, err := json.Marshal(cr.Snapshot.StringMap())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	var number int64
	err = s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO change_requests (id, subject_id, status, requested_changes, snapshot, requested_by, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7)
		RETURNING number`,
		uuid.UUID(cr.ID), cr.SubjectID.String(), string(cr.Status), changes, snapshot, cr.RequestedBy, cr.CreatedAt,
	).Scan(&number)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert change request: %w", err)
	}
	cr.Number = number
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.RequestID) (*models.ChangeRequest, error) {
	return scanRequest(s.execer(ctx).QueryRowContext(ctx, selectColumns+` WHERE id = $1`, uuid.UUID(id)))
}

func (s *PostgresStore) FindPendingBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error) {
	return scanRequest(s.execer(ctx).QueryRowContext(ctx,
		selectColumns+` WHERE subject_id = $1 AND status = 'PENDING'`, subjectID.String()))
}

func (s *PostgresStore) FindLatestBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.ChangeRequest, error) {
	return scanRequest(s.execer(ctx).QueryRowContext(ctx,
		selectColumns+` WHERE subject_id = $1 ORDER BY number DESC LIMIT 1`, subjectID.String()))
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.ChangeRequest, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectColumns+` WHERE status = 'PENDING' ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("list pending change requests: %w", err)
	}
	defer rows.Close()

	var out []*models.ChangeRequest
	for rows.Next() {
		cr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change requests: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE, runs validate then mutate,
// and writes the resolution columns back. A transaction already in ctx is joined.
func (s *PostgresStore) Execute(ctx context.Context, id domain.RequestID, validate func(*models.ChangeRequest) error, mutate func(*models.ChangeRequest)) (*models.ChangeRequest, error) {
	var out *models.ChangeRequest
	err := s.inTx(ctx, func(q queryer) error {
		cr, err := scanRequest(q.QueryRowContext(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, uuid.UUID(id)))
		if err != nil {
			return err
		}
		if err := validate(cr); err != nil {
			return err
		}
		mutate(cr)
		_, err = q.ExecContext(ctx, `
			UPDATE change_requests
			SET status = $2, resolved_by = $3, resolved_at = $4
			WHERE id = $1`,
			uuid.UUID(cr.ID), string(cr.Status), cr.ResolvedBy, cr.ResolvedAt)
		if err != nil {
			return fmt.Errorf("update change request: %w", err)
		}
		out = cr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(q queryer) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanRequest(row rowScanner) (*models.ChangeRequest, error) {
	var (
		id         uuid.UUID
		subjectID  string
		status     string
		changes    []byte
		snapshot   []byte
		resolvedAt sql.NullTime
		cr         models.ChangeRequest
	)
	err := row.Scan(&id, &cr.Number, &subjectID, &status, &changes, &snapshot,
		&cr.RequestedBy, &cr.ResolvedBy, &cr.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan change request: %w", err)
	}
	cr.ID = domain.RequestID(id)
	cr.SubjectID = domain.SubjectID(subjectID)
	cr.Status = models.Status(status)
	if cr.RequestedChanges, err = decodeValues(changes); err != nil {
		return nil, err
	}
	if cr.Snapshot, err = decodeValues(snapshot); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		cr.ResolvedAt = &at
	}
	return &cr, nil
}

func decodeValues(raw []byte) (fields.Values, error) {
	m := map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode field values: %w", err)
		}
	}
	return fields.FromStringMap(m), nil
}
