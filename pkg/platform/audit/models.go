package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers changes to a subject's canonical record and
	// the decisions that led to them. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine workflow activity. Can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// SubjectID is the PSN of the record the action concerns.
	SubjectID string
	Action    string
	// ChangeRequestID links the event to a change request when there is one.
	ChangeRequestID string
	Decision        string
	// Fields lists the field keys touched or proposed, never their values.
	Fields    []string
	ActorID   string
	RequestID string
}

type AuditEvent string

const (
	EventChangeRequestSubmitted  AuditEvent = "change_request_submitted"
	EventChangeRequestConflicted AuditEvent = "change_request_conflicted"
	EventChangeRequestApproved   AuditEvent = "change_request_approved"
	EventChangeRequestRejected   AuditEvent = "change_request_rejected"
	EventChangeRequestStale      AuditEvent = "change_request_revalidation_failed"
	EventSubjectRecordUpdated    AuditEvent = "subject_record_updated"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventChangeRequestApproved: CategoryCompliance,
	EventChangeRequestRejected: CategoryCompliance,
	EventSubjectRecordUpdated:  CategoryCompliance,

	EventChangeRequestSubmitted:  CategoryOperations,
	EventChangeRequestConflicted: CategoryOperations,
	EventChangeRequestStale:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
