package handler

import (
	"time"

	"registrar/internal/approval"
	"registrar/internal/changerequest/models"
	"registrar/internal/fields"
)

type SubmitResponse struct {
	RequestID     string `json:"requestId"`
	RequestNumber string `json:"requestNumber"`
	Status        string `json:"status"`
}

type ChangeRequestResponse struct {
	ID               string            `json:"id"`
	RequestNumber    string            `json:"requestNumber"`
	SubjectID        string            `json:"subjectId"`
	Status           string            `json:"status"`
	RequestedChanges map[string]string `json:"requestedChanges"`
	CurrentData      map[string]string `json:"currentData"`
	RequestedBy      string            `json:"requestedBy,omitempty"`
	ResolvedBy       string            `json:"resolvedBy,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	ResolvedAt       *time.Time        `json:"resolvedAt,omitempty"`
}

type ListResponse struct {
	Requests []ChangeRequestResponse `json:"requests"`
}

type ResolveResponse struct {
	RequestID     string            `json:"requestId"`
	Status        string            `json:"status"`
	AppliedFields map[string]string `json:"appliedFields"`
}

type FieldsResponse struct {
	Fields []fields.Meta `json:"fields"`
}

func toSubmitResponse(cr *models.ChangeRequest) SubmitResponse {
	return SubmitResponse{
		RequestID:     cr.ID.String(),
		RequestNumber: cr.RequestNumber(),
		Status:        string(cr.Status),
	}
}

func toChangeRequestResponse(cr *models.ChangeRequest) ChangeRequestResponse {
	return ChangeRequestResponse{
		ID:               cr.ID.String(),
		RequestNumber:    cr.RequestNumber(),
		SubjectID:        cr.SubjectID.String(),
		Status:           string(cr.Status),
		RequestedChanges: cr.RequestedChanges.StringMap(),
		CurrentData:      cr.Snapshot.StringMap(),
		RequestedBy:      cr.RequestedBy,
		ResolvedBy:       cr.ResolvedBy,
		CreatedAt:        cr.CreatedAt,
		ResolvedAt:       cr.ResolvedAt,
	}
}

func toListResponse(requests []*models.ChangeRequest) ListResponse {
	out := ListResponse{Requests: make([]ChangeRequestResponse, 0, len(requests))}
	for _, cr := range requests {
		out.Requests = append(out.Requests, toChangeRequestResponse(cr))
	}
	return out
}

// toResolveResponse reports the applied values; a rejection applies none.
func toResolveResponse(result *approval.AppliedResult) ResolveResponse {
	applied := result.Applied.StringMap()
	return ResolveResponse{
		RequestID:     result.Request.ID.String(),
		Status:        string(result.Request.Status),
		AppliedFields: applied,
	}
}
