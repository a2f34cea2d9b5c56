package fields

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

const dateLayout = "2006-01-02"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Failure reasons reported per field.
const (
	ReasonRequired    = "is required"
	ReasonEmail       = "must be a valid email address"
	ReasonURL         = "must be an absolute http or https URL"
	ReasonDateFormat  = "must be a date in YYYY-MM-DD format"
	ReasonDateFuture  = "must not be in the future"
	ReasonUnknown     = "is not an editable field"
	reasonTooLongFmt  = "must be at most %d characters"
	reasonNotInDomain = "must be one of "
)

// Registry is the immutable field catalog with its validators.
type Registry struct {
	metas    map[Key]Meta
	order    []Key
	validate *validator.Validate
}

// NewRegistry builds a registry from metas, rejecting duplicate keys and
// enum fields without a domain.
func NewRegistry(metas ...Meta) (*Registry, error) {
	r := &Registry{
		metas:    make(map[Key]Meta, len(metas)),
		order:    make([]Key, 0, len(metas)),
		validate: validator.New(),
	}
	for _, m := range metas {
		if m.Key == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "field key is required")
		}
		if _, dup := r.metas[m.Key]; dup {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "duplicate field key: "+string(m.Key))
		}
		if (m.Type == TypeEnum) != (len(m.Domain) > 0) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "enum domain mismatch for field: "+string(m.Key))
		}
		if m.Type == TypeText && m.MaxLength == 0 {
			m.MaxLength = DefaultMaxLength
		}
		m.Domain = slices.Clone(m.Domain)
		r.metas[m.Key] = m
		r.order = append(r.order, m.Key)
	}
	return r, nil
}

// Default returns a registry over Catalog.
func Default() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Describe returns the metadata for key.
func (r *Registry) Describe(key Key) (Meta, error) {
	m, ok := r.metas[key]
	if !ok {
		return Meta{}, dErrors.New(dErrors.CodeNotFound, "unknown field: "+string(key))
	}
	m.Domain = slices.Clone(m.Domain)
	return m, nil
}

// Has reports whether key is in the catalog.
func (r *Registry) Has(key Key) bool {
	_, ok := r.metas[key]
	return ok
}

// Keys returns the catalog keys in display order.
func (r *Registry) Keys() []Key {
	return slices.Clone(r.order)
}

// All returns every field's metadata in display order.
func (r *Registry) All() []Meta {
	out := make([]Meta, 0, len(r.order))
	for _, k := range r.order {
		m, _ := r.Describe(k)
		out = append(out, m)
	}
	return out
}

// Len returns the number of catalog fields.
func (r *Registry) Len() int {
	return len(r.order)
}

// Validate normalizes raw for key or returns a validation error naming the field.
// Unknown keys fail with CodeNotFound.
func (r *Registry) Validate(ctx context.Context, key Key, raw string) (string, error) {
	meta, err := r.Describe(key)
	if err != nil {
		return "", err
	}
	value, reason := r.check(ctx, meta, raw)
	if reason != "" {
		return "", dErrors.NewValidation("invalid value for "+string(key), []dErrors.FieldError{
			{Field: string(key), Reason: reason},
		})
	}
	return value, nil
}

// ValidateAll validates every entry, collecting all failures into one error.
// Unknown keys are reported as field failures rather than aborting.
func (r *Registry) ValidateAll(ctx context.Context, values Values) (Values, error) {
	out := make(Values, len(values))
	var failures []dErrors.FieldError
	for _, key := range values.Keys() {
		meta, ok := r.metas[key]
		if !ok {
			failures = append(failures, dErrors.FieldError{Field: string(key), Reason: ReasonUnknown})
			continue
		}
		value, reason := r.check(ctx, meta, values[key])
		if reason != "" {
			failures = append(failures, dErrors.FieldError{Field: string(key), Reason: reason})
			continue
		}
		out[key] = value
	}
	if len(failures) > 0 {
		return nil, dErrors.NewValidation("invalid field values", failures)
	}
	return out, nil
}

// check returns the normalized value, or a non-empty reason when raw is rejected.
func (r *Registry) check(ctx context.Context, meta Meta, raw string) (string, string) {
	switch meta.Type {
	case TypeDate:
		return checkDate(requestcontext.Now(ctx), raw)
	case TypeEnum:
		return checkEnum(meta, raw)
	default:
		return r.checkText(meta, raw)
	}
}

func (r *Registry) checkText(meta Meta, raw string) (string, string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		if meta.Required {
			return "", ReasonRequired
		}
		return "", ""
	}
	if meta.MaxLength > 0 && len([]rune(v)) > meta.MaxLength {
		return "", fmt.Sprintf(reasonTooLongFmt, meta.MaxLength)
	}
	switch meta.Format {
	case FormatEmail:
		if !emailPattern.MatchString(v) {
			return "", ReasonEmail
		}
	case FormatURL:
		lower := strings.ToLower(v)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return "", ReasonURL
		}
		if err := r.validate.Var(v, "url"); err != nil {
			return "", ReasonURL
		}
	}
	return v, ""
}

// checkDate accepts YYYY-MM-DD or RFC 3339 and rejects calendar dates after today (UTC).
func checkDate(now time.Time, raw string) (string, string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", ReasonDateFormat
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		t, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return "", ReasonDateFormat
		}
		// Instants are compared on the UTC calendar, like today.
		t = t.UTC()
	}
	normalized := t.Format(dateLayout)
	if normalized > now.UTC().Format(dateLayout) {
		return "", ReasonDateFuture
	}
	return normalized, ""
}

func checkEnum(meta Meta, raw string) (string, string) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if slices.Contains(meta.Domain, v) {
		return v, ""
	}
	return "", reasonNotInDomain + strings.Join(meta.Domain, ", ")
}
