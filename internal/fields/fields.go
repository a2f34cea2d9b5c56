// Package fields is the static catalog of editable record fields and the
// per-type validators every other component relies on.
//
// The catalog is fixed at build time. Validation is pure: it normalizes a raw
// string into its canonical form or reports why the value is unacceptable.
// "Today" for date checks is taken from requestcontext.Now so callers can pin it.
package fields

import (
	"sort"
)

// Key identifies an editable field. Keys match the JSON names used by clients.
type Key string

const (
	KeyFirstName         Key = "firstName"
	KeyLastName          Key = "lastName"
	KeyMiddleName        Key = "middleName"
	KeyDateOfBirth       Key = "dateOfBirth"
	KeyPlaceOfBirth      Key = "placeOfBirth"
	KeyGender            Key = "gender"
	KeyCitizenshipStatus Key = "citizenshipStatus"
	KeyNationality       Key = "nationality"
	KeyPhoto             Key = "photo"
	KeyEmail             Key = "email"
	KeyPhone             Key = "phone"
)

func (k Key) String() string { return string(k) }

// Type is the value kind of a field.
type Type string

const (
	TypeText Type = "text"
	TypeDate Type = "date"
	TypeEnum Type = "enum"
)

// Format narrows a text field.
type Format string

const (
	FormatNone  Format = ""
	FormatEmail Format = "email"
	FormatURL   Format = "url"
)

// DefaultMaxLength bounds text values when a field does not set its own limit.
const DefaultMaxLength = 256

// Meta describes one editable field.
//
// Invariants:
//   - Domain is non-empty iff Type is TypeEnum
//   - Format is only meaningful for TypeText
type Meta struct {
	Key       Key      `json:"key"`
	Label     string   `json:"label"`
	Type      Type     `json:"type"`
	Domain    []string `json:"domain,omitempty"`
	Required  bool     `json:"required"`
	Format    Format   `json:"format,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
}

// Values maps field keys to their string values.
type Values map[Key]string

// Clone returns an independent copy.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Keys returns the keys in lexical order.
func (v Values) Keys() []Key {
	keys := make([]Key, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Subset returns the entries of v whose keys appear in keys. Missing keys map to "".
func (v Values) Subset(keys []Key) Values {
	out := make(Values, len(keys))
	for _, k := range keys {
		out[k] = v[k]
	}
	return out
}

// StringMap converts to a plain map for JSON and storage.
func (v Values) StringMap() map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[string(k)] = val
	}
	return out
}

// FromStringMap converts a plain map into Values without validation.
func FromStringMap(m map[string]string) Values {
	out := make(Values, len(m))
	for k, val := range m {
		out[Key(k)] = val
	}
	return out
}

// Catalog returns the editable fields of a citizen record in display order.
func Catalog() []Meta {
	return []Meta{
		{Key: KeyFirstName, Label: "First Name", Type: TypeText, Required: true},
		{Key: KeyLastName, Label: "Last Name", Type: TypeText, Required: true},
		{Key: KeyMiddleName, Label: "Middle Name", Type: TypeText},
		{Key: KeyDateOfBirth, Label: "Date of Birth", Type: TypeDate},
		{Key: KeyPlaceOfBirth, Label: "Place of Birth", Type: TypeText},
		{Key: KeyGender, Label: "Gender", Type: TypeEnum, Domain: []string{"MALE", "FEMALE", "OTHER"}},
		{Key: KeyCitizenshipStatus, Label: "Citizenship Status", Type: TypeEnum, Domain: []string{
			"CITIZEN", "PERMANENT_RESIDENT", "TEMPORARY_RESIDENT", "REFUGEE", "ASYLUM_SEEKER",
		}},
		{Key: KeyNationality, Label: "Nationality", Type: TypeText},
		{Key: KeyPhoto, Label: "Photo", Type: TypeText, Format: FormatURL, MaxLength: 2048},
		{Key: KeyEmail, Label: "Email", Type: TypeText, Format: FormatEmail},
		{Key: KeyPhone, Label: "Phone", Type: TypeText, MaxLength: 32},
	}
}
