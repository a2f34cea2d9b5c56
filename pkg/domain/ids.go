package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "registrar/pkg/domain-errors"
)

// SubjectID is the personal serial number (PSN) that identifies a citizen record.
// Invariant: exactly ten ASCII digits.
//
// Usage: construct via ParseSubjectID at trust boundaries; direct conversion
// bypasses validation and is reserved for stores reading trusted rows.
type SubjectID string

// SubjectIDLength is the fixed length of a PSN.
const SubjectIDLength = 10

// ParseSubjectID validates external input as a PSN.
func ParseSubjectID(s string) (SubjectID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if len(s) != SubjectIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id must be exactly 10 digits")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "subject id must be exactly 10 digits")
		}
	}
	return SubjectID(s), nil
}

func (s SubjectID) String() string { return string(s) }

// IsZero reports whether the id is unset.
func (s SubjectID) IsZero() bool { return s == "" }

// RequestID identifies a change request.
type RequestID uuid.UUID

// NewRequestID returns a fresh random request id.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// ParseRequestID parses a change request id from external input.
func ParseRequestID(s string) (RequestID, error) {
	if strings.TrimSpace(s) == "" {
		return RequestID{}, dErrors.New(dErrors.CodeInvalidInput, "request id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return RequestID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid request id")
	}
	if u == uuid.Nil {
		return RequestID{}, dErrors.New(dErrors.CodeInvalidInput, "request id must not be nil")
	}
	return RequestID(u), nil
}

func (r RequestID) String() string { return uuid.UUID(r).String() }

// IsNil reports whether the id is the nil UUID.
func (r RequestID) IsNil() bool { return uuid.UUID(r) == uuid.Nil }
