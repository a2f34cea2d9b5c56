// Package changeset assembles a subject's proposed edits into a validated diff.
//
// A Builder tracks the fields a subject has picked and the raw values typed for
// them. Build validates every selection against the field registry and returns
// an immutable ChangeSet, or one validation error listing every failing field.
package changeset

import (
	"context"
	"fmt"

	"registrar/internal/fields"
	dErrors "registrar/pkg/domain-errors"
)

// ReasonNoChanges is reported when every proposed value equals the current one.
const ReasonNoChanges = "no_changes"

var (
	ErrFieldAlreadySelected = dErrors.New(dErrors.CodeConflict, "field already selected")
	ErrNoFieldsRemaining    = dErrors.New(dErrors.CodeInvalidState, "no fields remaining")
	ErrUnknownField         = dErrors.New(dErrors.CodeNotFound, "unknown field")
	ErrFieldNotSelected     = dErrors.New(dErrors.CodeBadRequest, "field not selected")
	ErrEmptyChangeSet       = dErrors.New(dErrors.CodeValidation, "change set is empty")
)

// ChangeSet is a validated, non-empty mapping of field key to normalized value.
type ChangeSet struct {
	values fields.Values
}

// Values returns a copy of the proposed values.
func (c ChangeSet) Values() fields.Values { return c.values.Clone() }

// Keys returns the changed keys in lexical order.
func (c ChangeSet) Keys() []fields.Key { return c.values.Keys() }

// Len returns the number of fields in the change set.
func (c ChangeSet) Len() int { return len(c.values) }

// IsZero reports whether the change set was never built.
func (c ChangeSet) IsZero() bool { return len(c.values) == 0 }

// Builder collects distinct field selections and raw values. Not safe for concurrent use.
type Builder struct {
	registry *fields.Registry
	order    []fields.Key
	raw      map[fields.Key]*string
}

// NewBuilder returns an empty builder over registry.
func NewBuilder(registry *fields.Registry) *Builder {
	return &Builder{
		registry: registry,
		raw:      make(map[fields.Key]*string),
	}
}

// AddField selects key. Already-selected keys, a fully selected catalog and
// unknown keys are rejected in that order.
func (b *Builder) AddField(key fields.Key) error {
	if _, ok := b.raw[key]; ok {
		return fmt.Errorf("%w: %s", ErrFieldAlreadySelected, key)
	}
	if len(b.raw) >= b.registry.Len() {
		return ErrNoFieldsRemaining
	}
	if !b.registry.Has(key) {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	b.raw[key] = nil
	b.order = append(b.order, key)
	return nil
}

// RemoveField drops a selection and any value typed for it.
func (b *Builder) RemoveField(key fields.Key) error {
	if _, ok := b.raw[key]; !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotSelected, key)
	}
	delete(b.raw, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetValue stores raw input for a selected field, replacing any earlier value.
func (b *Builder) SetValue(key fields.Key, raw string) error {
	if _, ok := b.raw[key]; !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotSelected, key)
	}
	v := raw
	b.raw[key] = &v
	return nil
}

// Selected returns the selected keys in selection order.
func (b *Builder) Selected() []fields.Key {
	return append([]fields.Key(nil), b.order...)
}

// Available returns the catalog keys not yet selected, in catalog order.
func (b *Builder) Available() []fields.Key {
	var out []fields.Key
	for _, k := range b.registry.Keys() {
		if _, ok := b.raw[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Build validates every selection and diffs the result against current.
//
// All field failures are returned together. A change set whose values all
// equal current is rejected with reason ReasonNoChanges.
func (b *Builder) Build(ctx context.Context, current fields.Values) (ChangeSet, error) {
	if len(b.raw) == 0 {
		return ChangeSet{}, ErrEmptyChangeSet
	}

	values, failures := b.validated(ctx)
	if len(failures) > 0 {
		return ChangeSet{}, dErrors.NewValidation("invalid change set", failures)
	}

	if !differs(values, current) {
		noop := make([]dErrors.FieldError, 0, len(values))
		for _, key := range values.Keys() {
			noop = append(noop, dErrors.FieldError{Field: string(key), Reason: ReasonNoChanges})
		}
		return ChangeSet{}, dErrors.NewValidation("change set does not change any value", noop)
	}
	return ChangeSet{values: values}, nil
}

// FromEdits drives a builder from a decoded {field: value} mapping, as received
// from a client that performed its own selection. Unknown keys are reported as
// field failures alongside any value failures.
func FromEdits(ctx context.Context, registry *fields.Registry, edits map[string]string, current fields.Values) (ChangeSet, error) {
	if len(edits) == 0 {
		return ChangeSet{}, ErrEmptyChangeSet
	}
	b := NewBuilder(registry)
	var unknown []dErrors.FieldError
	for _, key := range fields.FromStringMap(edits).Keys() {
		if err := b.AddField(key); err != nil {
			unknown = append(unknown, dErrors.FieldError{Field: string(key), Reason: fields.ReasonUnknown})
			continue
		}
		if err := b.SetValue(key, edits[string(key)]); err != nil {
			return ChangeSet{}, err
		}
	}
	if len(unknown) > 0 {
		_, failures := b.validated(ctx)
		return ChangeSet{}, dErrors.NewValidation("invalid change set", append(unknown, failures...))
	}
	return b.Build(ctx, current)
}

// validated runs the registry over every selection without short-circuiting.
func (b *Builder) validated(ctx context.Context) (fields.Values, []dErrors.FieldError) {
	values := make(fields.Values, len(b.raw))
	var failures []dErrors.FieldError
	for _, key := range b.order {
		raw := b.raw[key]
		if raw == nil {
			failures = append(failures, dErrors.FieldError{Field: string(key), Reason: fields.ReasonRequired})
			continue
		}
		v, err := b.registry.Validate(ctx, key, *raw)
		if err != nil {
			failures = append(failures, fieldFailures(key, err)...)
			continue
		}
		values[key] = v
	}
	return values, failures
}

// differs treats a key absent from current as an empty value.
func differs(values, current fields.Values) bool {
	for k, v := range values {
		if current[k] != v {
			return true
		}
	}
	return false
}

func fieldFailures(key fields.Key, err error) []dErrors.FieldError {
	if fe := dErrors.FieldsOf(err); len(fe) > 0 {
		return fe
	}
	return []dErrors.FieldError{{Field: string(key), Reason: err.Error()}}
}
