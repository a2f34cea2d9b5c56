package handler

import "registrar/pkg/platform/httputil"

// ProposeRequest is the citizen's proposal body. Edits maps field keys to raw
// values; the field registry validates them.
type ProposeRequest struct {
	SubjectID string            `json:"subjectId" validate:"required,len=10,numeric"`
	Edits     map[string]string `json:"edits" validate:"required"`
}

func (r *ProposeRequest) Validate() error {
	return httputil.ValidateStruct(r)
}

// ResolveRequest is the agency decision. Approve is a pointer so an omitted
// value is rejected instead of read as a rejection.
type ResolveRequest struct {
	SubjectID string `json:"subjectId" validate:"required,len=10,numeric"`
	Approve   *bool  `json:"approve" validate:"required"`
}

func (r *ResolveRequest) Validate() error {
	return httputil.ValidateStruct(r)
}
