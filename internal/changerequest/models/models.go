package models

import (
	"fmt"
	"time"

	"registrar/internal/fields"
	"registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

// Status is the lifecycle state of a change request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusPending || s.IsTerminal()
}

// CanTransitionTo encodes PENDING → {APPROVED, REJECTED}; terminal states have no edges.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// ParseStatus constructs a Status from external input.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status: "+v)
	}
	return s, nil
}

// ChangeRequest is a subject's proposal to change fields of their record.
//
// Invariants:
//   - RequestedChanges is never empty
//   - at most one PENDING request exists per SubjectID (enforced by the store)
//   - Status leaves PENDING exactly once; APPROVED and REJECTED are terminal
//   - Snapshot is captured at submission and never changes
type ChangeRequest struct {
	ID               domain.RequestID
	Number           int64
	SubjectID        domain.SubjectID
	Status           Status
	RequestedChanges fields.Values
	Snapshot         fields.Values
	RequestedBy      string
	ResolvedBy       string
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// NewChangeRequest builds a PENDING request, enforcing construction invariants.
func NewChangeRequest(id domain.RequestID, subjectID domain.SubjectID, changes, snapshot fields.Values, requestedBy string, now time.Time) (*ChangeRequest, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request id is required")
	}
	if subjectID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject id is required")
	}
	if len(changes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requested changes must not be empty")
	}
	return &ChangeRequest{
		ID:               id,
		SubjectID:        subjectID,
		Status:           StatusPending,
		RequestedChanges: changes.Clone(),
		Snapshot:         snapshot.Clone(),
		RequestedBy:      requestedBy,
		CreatedAt:        now,
	}, nil
}

// RequestNumber renders the human-facing sequence number, e.g. CR-000042.
func (c *ChangeRequest) RequestNumber() string {
	if c.Number <= 0 {
		return ""
	}
	return fmt.Sprintf("CR-%06d", c.Number)
}

// IsPending reports whether the request still awaits review.
func (c *ChangeRequest) IsPending() bool {
	return c.Status == StatusPending
}

// CanResolve checks the transition to outcome without applying it.
// Use with ApplyResolution in store Execute callbacks.
func (c *ChangeRequest) CanResolve(outcome Status) error {
	if !outcome.IsTerminal() {
		return dErrors.New(dErrors.CodeBadRequest, "resolution outcome must be APPROVED or REJECTED")
	}
	if !c.Status.CanTransitionTo(outcome) {
		return dErrors.New(dErrors.CodeInvalidState, "change request is already "+string(c.Status))
	}
	return nil
}

// ApplyResolution moves the request to outcome. Call CanResolve first.
func (c *ChangeRequest) ApplyResolution(outcome Status, resolvedBy string, now time.Time) {
	c.Status = outcome
	c.ResolvedBy = resolvedBy
	at := now
	c.ResolvedAt = &at
}

// Clone returns a deep copy.
func (c *ChangeRequest) Clone() *ChangeRequest {
	if c == nil {
		return nil
	}
	out := *c
	out.RequestedChanges = c.RequestedChanges.Clone()
	out.Snapshot = c.Snapshot.Clone()
	if c.ResolvedAt != nil {
		at := *c.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}
