package models

import (
	"time"

	"registrar/internal/fields"
	"registrar/pkg/domain"
)

// Record is a subject's canonical record. Values holds the editable fields;
// IsActive and the timestamps are owned by the record store.
type Record struct {
	SubjectID domain.SubjectID
	Values    fields.Values
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Values = r.Values.Clone()
	if out.Values == nil {
		out.Values = fields.Values{}
	}
	return &out
}

// Editable returns the record's values for every key in keys, with "" for unset keys.
func (r *Record) Editable(keys []fields.Key) fields.Values {
	return r.Values.Subset(keys)
}
